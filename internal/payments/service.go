package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/ledger"
	"github.com/angelmondragon/farmlink-backend/internal/payments/providers"
	"github.com/angelmondragon/farmlink-backend/internal/poller"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

const (
	defaultMaxRetries  = 3
	providerCallBudget = 10 * time.Second
	resumeBatch        = 500
)

type providerLookup interface {
	Get(method enums.PaymentMethod) (providers.Provider, bool)
}

// Tracker watches processing intents until they resolve.
type Tracker interface {
	Track(ctx context.Context, job poller.Job) error
	Cancel(intentID uuid.UUID) bool
}

// Service dispatches payment intents to their method and resolves them.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error)
	PollStatus(ctx context.Context, intentID uuid.UUID, actor types.Actor) (*IntentView, error)
	Cancel(ctx context.Context, intentID uuid.UUID, actor types.Actor) (*models.PaymentIntent, error)
	CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	FailStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
	Resume(ctx context.Context) (int, error)
}

// CreateIntentInput starts one payment attempt for an order.
type CreateIntentInput struct {
	OrderID        uuid.UUID
	Actor          types.Actor
	Amount         money.Money
	Method         enums.PaymentMethod
	Phone          string
	SourceID       string
	IdempotencyKey string
}

// IntentView is a stored intent plus, while processing, the provider's
// current reading of it.
type IntentView struct {
	Intent         *models.PaymentIntent
	ProviderStatus providers.Status
}

type Config struct {
	MaxRetries int
}

type Params struct {
	Config    Config
	Repo      Repository
	Ledger    escrow
	Providers providerLookup
	Tracker   Tracker
	Resolver  *Resolver
	Tx        txRunner
	Logger    *logger.Logger
}

type service struct {
	cfg       Config
	repo      Repository
	ledger    escrow
	providers providerLookup
	tracker   Tracker
	resolver  *Resolver
	tx        txRunner
	logg      *logger.Logger
}

func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Providers == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if p.Tracker == nil {
		return nil, fmt.Errorf("intent tracker required")
	}
	if p.Resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	cfg := p.Config
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		cfg:       cfg,
		repo:      p.Repo,
		ledger:    p.Ledger,
		providers: p.Providers,
		tracker:   p.Tracker,
		resolver:  p.Resolver,
		tx:        p.Tx,
		logg:      logg,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error) {
	provider, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	var intent *models.PaymentIntent
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if order.BuyerID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": order.Status})
		}
		if input.Amount.Amount != order.TotalAmount || input.Amount.Currency != order.Currency {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount must equal the order total").
				WithDetails(map[string]any{"expected": order.TotalAmount, "currency": order.Currency})
		}

		active, err := repo.FindProcessing(ctx, order.ID)
		switch {
		case err == nil:
			return pkgerrors.New(pkgerrors.CodeConflict, "a payment is already in progress for this order").
				WithDetails(map[string]any{"intent_id": active.ID})
		case !db.IsNotFound(err):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active intent")
		}
		failed, err := repo.CountFailed(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count failed intents")
		}
		if failed >= int64(s.cfg.MaxRetries) {
			return pkgerrors.New(pkgerrors.CodeRetriesExhausted, "payment retries exhausted, contact support").
				WithDetails(map[string]any{"failed_attempts": failed, "max_retries": s.cfg.MaxRetries})
		}

		intent = &models.PaymentIntent{
			ID:         uuid.New(),
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			Method:     input.Method,
			Amount:     order.TotalAmount,
			Currency:   order.Currency,
			Status:     enums.PaymentStatusProcessing,
			RetryCount: int(failed),
			MaxRetries: s.cfg.MaxRetries,
		}
		if input.IdempotencyKey != "" {
			key := input.IdempotencyKey
			intent.IdempotencyKey = &key
		}
		if err := repo.Create(ctx, intent); err != nil {
			if db.IsUniqueViolation(err, "ux_payment_intents_processing") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a payment is already in progress for this order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create intent")
		}

		if input.Method == enums.PaymentMethodWallet {
			orderID := order.ID
			if _, err := s.ledger.Debit(ctx, tx, ledger.EntryInput{
				AccountID: order.BuyerID,
				OrderID:   &orderID,
				Amount:    money.New(order.TotalAmount, order.Currency),
				Reference: "intent:" + intent.ID.String(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithIntentID(ctx, intent.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_id":    intent.OrderID.String(),
		"method":      intent.Method,
		"retry_count": intent.RetryCount,
	})
	s.logg.Info(logCtx, "payment intent created")

	if provider != nil {
		ref, err := s.initiate(logCtx, provider, intent, input)
		if err != nil {
			return nil, err
		}
		intent.ProviderReference = &ref
	}

	s.track(logCtx, intent)
	return intent, nil
}

func (s *service) validate(input CreateIntentInput) (providers.Provider, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Actor.Is(enums.ActorRoleBuyer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can pay for orders")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	switch input.Method {
	case enums.PaymentMethodMobileMoney:
		if input.Phone == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required for mobile money")
		}
	case enums.PaymentMethodCard:
		if input.SourceID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source is required")
		}
	}
	if !input.Method.UsesProvider() {
		return nil, nil
	}
	provider, ok := s.providers.Get(input.Method)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is not available").
			WithDetails(map[string]any{"method": input.Method})
	}
	return provider, nil
}

// initiate starts the charge with the provider. A failed start resolves the
// intent as failed so the buyer can retry.
func (s *service) initiate(ctx context.Context, provider providers.Provider, intent *models.PaymentIntent, input CreateIntentInput) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, providerCallBudget)
	defer cancel()

	ref, err := provider.Initiate(callCtx, providers.InitiateRequest{
		IntentID: intent.ID,
		OrderID:  intent.OrderID,
		BuyerID:  intent.BuyerID,
		Amount:   money.New(intent.Amount, intent.Currency),
		Phone:    input.Phone,
		SourceID: input.SourceID,
	})
	if err == nil {
		if err = s.repo.SetProviderReference(ctx, intent.ID, ref); err == nil {
			return ref, nil
		}
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider reference")
	}

	s.logg.Error(ctx, "payment initiation failed", err)
	if resolveErr := s.resolver.Resolve(context.WithoutCancel(ctx), intent.ID, poller.Failed(enums.FailureProviderError)); resolveErr != nil {
		s.logg.Error(ctx, "failed to resolve intent after initiation error", resolveErr)
	}
	if pkgerrors.As(err) != nil {
		return "", err
	}
	return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable").
		WithDetails(map[string]any{"intent_id": intent.ID})
}

func (s *service) track(ctx context.Context, intent *models.PaymentIntent) {
	job := poller.Job{
		IntentID:  intent.ID,
		OrderID:   intent.OrderID,
		Method:    intent.Method,
		CreatedAt: intent.CreatedAt,
	}
	if intent.ProviderReference != nil {
		job.ProviderRef = *intent.ProviderReference
	}
	if err := s.tracker.Track(ctx, job); err != nil {
		// The stale intent job fails it once the countdown has passed.
		s.logg.Error(ctx, "failed to start poller", err)
	}
}

func (s *service) PollStatus(ctx context.Context, intentID uuid.UUID, actor types.Actor) (*IntentView, error) {
	intent, err := s.load(ctx, intentID, actor)
	if err != nil {
		return nil, err
	}
	view := &IntentView{Intent: intent}
	if intent.Status != enums.PaymentStatusProcessing || intent.ProviderReference == nil {
		return view, nil
	}
	provider, ok := s.providers.Get(intent.Method)
	if !ok {
		return view, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, providerCallBudget)
	defer cancel()
	status, err := provider.Status(callCtx, *intent.ProviderReference)
	if err != nil {
		s.logg.Warn(s.logg.WithField(s.logg.WithIntentID(ctx, intent.ID.String()), "error", err.Error()), "provider status unavailable")
		return view, nil
	}
	view.ProviderStatus = status
	return view, nil
}

func (s *service) Cancel(ctx context.Context, intentID uuid.UUID, actor types.Actor) (*models.PaymentIntent, error) {
	intent, err := s.load(ctx, intentID, actor)
	if err != nil {
		return nil, err
	}
	if intent.Status != enums.PaymentStatusProcessing {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already resolved").
			WithDetails(map[string]any{"status": intent.Status})
	}

	s.tracker.Cancel(intent.ID)
	s.voidAtProvider(ctx, intent)
	if err := s.resolver.Resolve(ctx, intent.ID, poller.Failed(enums.FailureUserCancelled)); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, intent.ID)
}

// CancelForOrder fails the order's processing intent inside the caller's
// transaction, which already holds the order lock.
func (s *service) CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	intent, err := s.repo.WithTx(tx).FindProcessing(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active intent")
	}
	s.tracker.Cancel(intent.ID)
	s.voidAtProvider(ctx, intent)
	settled, err := s.resolver.apply(ctx, tx, intent, poller.Failed(enums.FailureUserCancelled))
	if err != nil {
		return err
	}
	s.resolver.observe(ctx, settled)
	return nil
}

func (s *service) voidAtProvider(ctx context.Context, intent *models.PaymentIntent) {
	if intent.ProviderReference == nil {
		return
	}
	provider, ok := s.providers.Get(intent.Method)
	if !ok {
		return
	}
	canceller, ok := provider.(providers.Canceller)
	if !ok {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, providerCallBudget)
	defer cancel()
	if err := canceller.Cancel(callCtx, *intent.ProviderReference); err != nil {
		s.logg.Warn(s.logg.WithField(s.logg.WithIntentID(ctx, intent.ID.String()), "error", err.Error()), "provider cancel failed")
	}
}

// FailStale fails intents still processing after cutoff, such as those
// orphaned by a restart.
func (s *service) FailStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	intents, err := s.repo.ListProcessing(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale intents")
	}
	var (
		failed int
		errs   error
	)
	for _, intent := range intents {
		s.tracker.Cancel(intent.ID)
		if err := s.resolver.Resolve(ctx, intent.ID, poller.Failed(enums.FailureStale)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("intent %s: %w", intent.ID, err))
			continue
		}
		failed++
	}
	return failed, errs
}

// Resume re-tracks processing intents after a restart. Intents past their
// countdown time out on the first tick.
func (s *service) Resume(ctx context.Context) (int, error) {
	intents, err := s.repo.ListProcessing(ctx, time.Time{}, resumeBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list processing intents")
	}
	for i := range intents {
		s.track(s.logg.WithIntentID(ctx, intents[i].ID.String()), &intents[i])
	}
	return len(intents), nil
}

func (s *service) load(ctx context.Context, intentID uuid.UUID, actor types.Actor) (*models.PaymentIntent, error) {
	intent, err := s.repo.FindByID(ctx, intentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intent")
	}
	if intent.BuyerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	return intent, nil
}
