package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const defaultStaleBatch = 200

type staleIntentFailer interface {
	FailStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type StaleIntentJobParams struct {
	Logger   *logger.Logger
	Payments staleIntentFailer
	// MaxAge is how long an intent may stay processing: the fallback
	// countdown plus the synthetic delay plus a grace period.
	MaxAge    time.Duration
	BatchSize int
}

// NewStaleIntentJob fails intents no poller will ever resolve, for example
// after every API instance restarted mid-countdown.
func NewStaleIntentJob(params StaleIntentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.MaxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &staleIntentJob{
		logg:     params.Logger,
		payments: params.Payments,
		maxAge:   params.MaxAge,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type staleIntentJob struct {
	logg     *logger.Logger
	payments staleIntentFailer
	maxAge   time.Duration
	batch    int
	now      func() time.Time
}

func (j *staleIntentJob) Name() string { return "stale-intent" }

// Run fails one batch per cycle. Partial failures still report the intents
// that were failed.
func (j *staleIntentJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.maxAge)
	failed, err := j.payments.FailStale(ctx, cutoff, j.batch)
	if failed > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "intents_failed": failed})
		j.logg.Warn(logCtx, "failed stale payment intents")
	}
	if err != nil {
		return failed, fmt.Errorf("stale intents: %w", err)
	}
	return failed, nil
}
