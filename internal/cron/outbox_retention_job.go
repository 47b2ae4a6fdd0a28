package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultOutboxBatch     = 1000
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	Retention  time.Duration
	BatchSize  int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob deletes published outbox rows older than the
// retention window. Unpublished rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOutboxBatch
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes in batches until a short batch signals the backlog is gone.
func (j *outboxRetentionJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for {
		deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return int(total), fmt.Errorf("outbox retention: %w", err)
		}
		total += deleted
		if deleted < int64(j.batch) || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "rows_deleted": total})
		j.logg.Info(logCtx, "outbox retention cleanup complete")
	}
	return int(total), nil
}
