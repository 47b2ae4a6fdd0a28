// Package poller resolves payment intents by watching their provider until
// a terminal outcome or the fallback countdown, whichever comes first.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/internal/payments/providers"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
)

// Job is one intent to watch.
type Job struct {
	IntentID    uuid.UUID
	OrderID     uuid.UUID
	Method      enums.PaymentMethod
	ProviderRef string
	CreatedAt   time.Time
}

// Outcome is the terminal result handed to the Resolver.
type Outcome struct {
	Status enums.PaymentStatus
	Reason enums.PaymentFailureReason
}

// Succeeded is the outcome of a confirmed payment.
func Succeeded() Outcome {
	return Outcome{Status: enums.PaymentStatusSuccess}
}

// Failed is the outcome of a declined, expired or aborted payment.
func Failed(reason enums.PaymentFailureReason) Outcome {
	return Outcome{Status: enums.PaymentStatusFailed, Reason: reason}
}

// Resolver applies an outcome. It must tolerate intents that are already
// terminal.
type Resolver interface {
	Resolve(ctx context.Context, intentID uuid.UUID, outcome Outcome) error
}

type providerLookup interface {
	Get(method enums.PaymentMethod) (providers.Provider, bool)
}

// Claimer keeps one instance polling a given intent.
type Claimer interface {
	ClaimIntent(ctx context.Context, intentID, owner string, ttl time.Duration) (bool, error)
	ReleaseIntent(ctx context.Context, intentID, owner string) error
}

type Config struct {
	PollInterval      time.Duration
	FallbackCountdown time.Duration
	SyntheticDelayMin time.Duration
	SyntheticDelayMax time.Duration
	// Owner identifies this instance in poller claims.
	Owner string
}

type Params struct {
	Config    Config
	Providers providerLookup
	Resolver  Resolver
	Claims    Claimer
	Metrics   *metrics.SettlementMetrics
	Logger    *logger.Logger
}

// Manager owns every in-flight poll run of this instance.
type Manager struct {
	cfg       Config
	providers providerLookup
	resolver  Resolver
	claims    Claimer
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger

	root   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	runs   map[uuid.UUID]*run
	wg     sync.WaitGroup
	jitter func(lo, hi time.Duration) time.Duration
}

type run struct {
	job    Job
	cancel context.CancelFunc
	// settled is set exactly once, by whichever of the poll loop, the
	// countdown or a user cancel gets there first.
	settled atomic.Bool
}

func (r *run) settle() bool {
	return r.settled.CompareAndSwap(false, true)
}

func NewManager(params Params) (*Manager, error) {
	if params.Resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if params.Providers == nil {
		return nil, fmt.Errorf("provider lookup required")
	}
	cfg := params.Config
	if cfg.PollInterval <= 0 || cfg.FallbackCountdown <= 0 {
		return nil, fmt.Errorf("poll interval and fallback countdown must be positive")
	}
	if cfg.SyntheticDelayMax < cfg.SyntheticDelayMin {
		return nil, fmt.Errorf("synthetic delay max below min")
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	root, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		providers: params.Providers,
		resolver:  params.Resolver,
		claims:    params.Claims,
		metrics:   params.Metrics,
		logg:      logg,
		root:      root,
		stop:      stop,
		runs:      map[uuid.UUID]*run{},
		jitter:    uniformJitter,
	}, nil
}

// Track starts watching job in the background. It returns once the run is
// scheduled; the caller's context only bounds the claim round trip.
func (m *Manager) Track(ctx context.Context, job Job) error {
	if job.IntentID == uuid.Nil {
		return fmt.Errorf("intent id required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if m.root.Err() != nil {
		return fmt.Errorf("poller is shut down")
	}

	logCtx := m.logg.WithIntentID(ctx, job.IntentID.String())
	logCtx = m.logg.WithFields(logCtx, map[string]any{"method": job.Method, "order_id": job.OrderID.String()})

	if m.claims != nil {
		ttl := m.cfg.FallbackCountdown + m.cfg.SyntheticDelayMax + m.cfg.PollInterval
		ok, err := m.claims.ClaimIntent(ctx, job.IntentID.String(), m.cfg.Owner, ttl)
		switch {
		case err != nil:
			m.logg.Warn(m.logg.WithField(logCtx, "error", err.Error()), "poller claim failed, polling anyway")
		case !ok:
			m.logg.Info(logCtx, "intent already polled by another instance")
			return nil
		}
	}

	m.mu.Lock()
	if _, exists := m.runs[job.IntentID]; exists {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(m.root)
	r := &run{job: job, cancel: cancel}
	m.runs[job.IntentID] = r
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.PollerStarted()
	m.logg.Info(logCtx, "poller started")
	go m.execute(m.logg.WithIntentID(runCtx, job.IntentID.String()), r)
	return nil
}

// Cancel stops the run for intentID. It reports true when the run was
// stopped before any outcome was reached.
func (m *Manager) Cancel(intentID uuid.UUID) bool {
	m.mu.Lock()
	r, ok := m.runs[intentID]
	m.mu.Unlock()
	if !ok || !r.settle() {
		return false
	}
	r.cancel()
	return true
}

// Active reports the number of runs in flight.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// Wait blocks until every run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops all runs and waits for them, bounded by ctx. Intents left
// processing are picked up by the stale intent job.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) execute(ctx context.Context, r *run) {
	defer m.finish(ctx, r)

	if !r.job.Method.UsesProvider() {
		m.settleSynthetic(ctx, r)
		return
	}

	provider, ok := m.providers.Get(r.job.Method)
	if !ok {
		m.logg.Warn(ctx, "no provider registered for method")
		if r.settle() {
			m.resolve(ctx, r, Failed(enums.FailureProviderError))
		}
		return
	}

	results := make(chan Outcome, 2)
	var inner sync.WaitGroup
	inner.Add(2)
	go func() {
		defer inner.Done()
		m.pollLoop(ctx, r, provider, results)
	}()
	go func() {
		defer inner.Done()
		m.countdown(ctx, r, results)
	}()

	select {
	case out := <-results:
		r.cancel()
		inner.Wait()
		m.resolve(ctx, r, out)
	case <-ctx.Done():
		inner.Wait()
	}
}

// settleSynthetic resolves wallet and cash on delivery intents after a
// short randomized delay.
func (m *Manager) settleSynthetic(ctx context.Context, r *run) {
	timer := time.NewTimer(m.jitter(m.cfg.SyntheticDelayMin, m.cfg.SyntheticDelayMax))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if r.settle() {
		m.resolve(ctx, r, Succeeded())
	}
}

func (m *Manager) pollLoop(ctx context.Context, r *run, provider providers.Provider, results chan<- Outcome) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	method := string(r.job.Method)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := provider.Status(ctx, r.job.ProviderRef)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			result := "error"
			if errors.Is(err, providers.ErrThrottled) {
				result = "throttled"
			}
			m.metrics.PollRound(method, result)
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "provider status check failed")
			continue
		}
		m.metrics.PollRound(method, string(status))

		var out Outcome
		switch status {
		case providers.StatusSucceeded:
			out = Succeeded()
		case providers.StatusFailed:
			out = Failed(enums.FailureProviderDeclined)
		default:
			continue
		}
		if r.settle() {
			results <- out
		}
		return
	}
}

func (m *Manager) countdown(ctx context.Context, r *run, results chan<- Outcome) {
	remaining := m.cfg.FallbackCountdown - time.Since(r.job.CreatedAt)
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if r.settle() {
		results <- Failed(enums.FailureProviderTimeout)
	}
}

func (m *Manager) resolve(ctx context.Context, r *run, out Outcome) {
	logCtx := m.logg.WithFields(ctx, map[string]any{"status": out.Status, "reason": out.Reason})
	if err := m.resolver.Resolve(context.WithoutCancel(ctx), r.job.IntentID, out); err != nil {
		m.logg.Error(logCtx, "failed to resolve intent", err)
		return
	}
	m.logg.Info(logCtx, "intent resolved by poller")
}

func (m *Manager) finish(ctx context.Context, r *run) {
	r.cancel()
	m.mu.Lock()
	delete(m.runs, r.job.IntentID)
	m.mu.Unlock()

	if m.claims != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := m.claims.ReleaseIntent(releaseCtx, r.job.IntentID.String(), m.cfg.Owner); err != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "poller claim release failed")
		}
		cancel()
	}
	m.metrics.PollerStopped()
	m.wg.Done()
}

func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)))
}
