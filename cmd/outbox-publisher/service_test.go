package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			newEvent(t, enums.EventPaymentSucceeded, enums.AggregatePaymentIntent, 0),
			newEvent(t, enums.EventReserveHeld, enums.AggregateReserve, 0),
		},
	}
	sink := &fakeSink{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, sink, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
}

func TestPublishKeysByAggregate(t *testing.T) {
	event := newEvent(t, enums.EventOrderStateChanged, enums.AggregateMasterOrder, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	sink := &fakeSink{}
	service := newTestService(t, repo, sink, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sink.sent))
	}
	msg := sink.sent[0]
	if msg.key != event.AggregateID.String() {
		t.Fatalf("expected aggregate key, got %q", msg.key)
	}
	if msg.attrs["event_type"] != string(enums.EventOrderStateChanged) {
		t.Fatalf("unexpected event_type attr %q", msg.attrs["event_type"])
	}
	if msg.attrs["event_id"] == "" {
		t.Fatalf("expected event_id attr")
	}
}

func TestUndecodablePayloadIsTerminal(t *testing.T) {
	event := newEvent(t, enums.EventPaymentFailed, enums.AggregatePaymentIntent, 0)
	event.Payload = json.RawMessage(`not json`)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	sink := &fakeSink{}
	service := newTestService(t, repo, sink, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected terminal row, got %v", repo.terminal)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("undecodable row must not be published")
	}
}

func TestMaxAttemptsIsTerminal(t *testing.T) {
	event := newEvent(t, enums.EventReserveReleased, enums.AggregateReserve, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	sink := &fakeSink{errs: []error{errors.New("broker down")}}
	service := newTestService(t, repo, sink, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal row, got %d", len(repo.terminal))
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal row should not also be marked failed")
	}
}

func TestEmptyBatch(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakeSink{}, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle batch, got processed=%v err=%v", processed, err)
	}
}

func TestRunFailsWhenSinkUnreachable(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakeSink{pingErr: errors.New("no route")}, nil)
	if err := service.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness error")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(base, base, maxBackoff); got != time.Second {
		t.Fatalf("expected doubling, got %s", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, s sink, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: outboxCfg},
		Logger:     logg,
		DB:         &fakeDB{},
		Sink:       s,
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func newEvent(tb testing.TB, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, attempts int) models.OutboxEvent {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type sentMessage struct {
	key   string
	attrs map[string]string
}

type fakeSink struct {
	errs    []error
	sent    []sentMessage
	pingErr error
}

func (f *fakeSink) Publish(_ context.Context, key string, _ []byte, attrs map[string]string) error {
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, sentMessage{key: key, attrs: attrs})
	}
	return err
}

func (f *fakeSink) Ping(context.Context) error { return f.pingErr }

func (f *fakeSink) Topic() string { return "farmlink-settlement-events" }
