package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type fakeStaleFailer struct {
	cutoff time.Time
	limit  int
	failed int
	err    error
}

func (f *fakeStaleFailer) FailStale(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.failed, f.err
}

func TestStaleIntentJobUsesMaxAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	payments := &fakeStaleFailer{failed: 4}
	jobIface, err := NewStaleIntentJob(StaleIntentJobParams{
		Logger:   logger.Nop(),
		Payments: payments,
		MaxAge:   3 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewStaleIntentJob: %v", err)
	}
	job := jobIface.(*staleIntentJob)
	job.now = func() time.Time { return now }

	rows, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rows != 4 {
		t.Fatalf("expected 4 rows, got %d", rows)
	}
	if want := now.Add(-3 * time.Minute); !payments.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, payments.cutoff)
	}
	if payments.limit != defaultStaleBatch {
		t.Fatalf("expected limit %d, got %d", defaultStaleBatch, payments.limit)
	}
}

func TestStaleIntentJobReportsPartialFailure(t *testing.T) {
	t.Parallel()

	payments := &fakeStaleFailer{failed: 2, err: errors.New("intent x: boom")}
	job, err := NewStaleIntentJob(StaleIntentJobParams{Logger: logger.Nop(), Payments: payments, MaxAge: time.Minute})
	if err != nil {
		t.Fatalf("NewStaleIntentJob: %v", err)
	}
	rows, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if rows != 2 {
		t.Fatalf("expected 2 rows, got %d", rows)
	}
}

func TestNewStaleIntentJobValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewStaleIntentJob(StaleIntentJobParams{Logger: logger.Nop(), Payments: &fakeStaleFailer{}}); err == nil {
		t.Fatal("expected max age error")
	}
	if _, err := NewStaleIntentJob(StaleIntentJobParams{Logger: logger.Nop(), MaxAge: time.Minute}); err == nil {
		t.Fatal("expected payments error")
	}
}
