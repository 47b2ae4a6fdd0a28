package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/ledger"
	"github.com/angelmondragon/farmlink-backend/internal/poller"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type escrow interface {
	Hold(ctx context.Context, tx *gorm.DB, input ledger.HoldInput) (*models.ReserveEntry, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.TransactionRecord, error)
	Credit(ctx context.Context, tx *gorm.DB, input ledger.EntryInput) (*models.TransactionRecord, error)
	Debit(ctx context.Context, tx *gorm.DB, input ledger.EntryInput) (*models.TransactionRecord, error)
}

// OrderConfirmer moves a pending order to confirmed once paid.
type OrderConfirmer interface {
	ConfirmPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, method enums.PaymentMethod) (bool, error)
}

// Resolver applies terminal outcomes to intents. Whoever flips the intent
// out of processing first wins; later outcomes are acknowledged and dropped.
type Resolver struct {
	repo    Repository
	ledger  escrow
	orders  OrderConfirmer
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type ResolverParams struct {
	Repo    Repository
	Ledger  escrow
	Orders  OrderConfirmer
	Tx      txRunner
	Outbox  outboxPublisher
	Metrics *metrics.SettlementMetrics
	Logger  *logger.Logger
}

func NewResolver(p ResolverParams) (*Resolver, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order confirmer required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{
		repo:    p.Repo,
		ledger:  p.Ledger,
		orders:  p.Orders,
		tx:      p.Tx,
		outbox:  p.Outbox,
		metrics: p.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Resolve settles intentID in its own transaction.
func (r *Resolver) Resolve(ctx context.Context, intentID uuid.UUID, outcome poller.Outcome) error {
	var settled *models.PaymentIntent
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		intent, err := r.repo.WithTx(tx).FindByID(ctx, intentID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intent")
		}
		settled, err = r.apply(ctx, tx, intent, outcome)
		return err
	})
	if err != nil {
		return err
	}
	r.observe(ctx, settled)
	return nil
}

// apply runs inside tx. It returns nil when the intent was already terminal.
func (r *Resolver) apply(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, outcome poller.Outcome) (*models.PaymentIntent, error) {
	logCtx := r.logg.WithIntentID(ctx, intent.ID.String())
	if intent.Status.IsTerminal() {
		r.logg.Info(r.logg.WithField(logCtx, "status", intent.Status), "intent already resolved")
		return nil, nil
	}

	repo := r.repo.WithTx(tx)
	// The order row is locked before the intent so resolution and order
	// cancellation acquire locks in the same sequence.
	if _, err := repo.LockOrder(ctx, intent.OrderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}

	now := r.now().UTC()
	updates := map[string]any{
		"status":      outcome.Status,
		"resolved_at": now,
		"updated_at":  now,
	}
	if outcome.Status == enums.PaymentStatusFailed {
		updates["failure_reason"] = outcome.Reason
		if outcome.Reason.CountsAsRetry() {
			updates["retry_count"] = intent.RetryCount + 1
		}
	}
	won, err := repo.Settle(ctx, intent.ID, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle intent")
	}
	if !won {
		r.logg.Info(logCtx, "intent resolved concurrently")
		return nil, nil
	}

	intent.Status = outcome.Status
	intent.ResolvedAt = &now
	switch outcome.Status {
	case enums.PaymentStatusSuccess:
		err = r.onSuccess(ctx, tx, intent)
	case enums.PaymentStatusFailed:
		reason := outcome.Reason
		intent.FailureReason = &reason
		if reason.CountsAsRetry() {
			intent.RetryCount++
		}
		err = r.onFailure(ctx, tx, intent)
	default:
		err = pkgerrors.New(pkgerrors.CodeInternal, "outcome must be terminal")
	}
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (r *Resolver) onSuccess(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) error {
	amount := money.New(intent.Amount, intent.Currency)
	if intent.Method.HoldsFunds() {
		intentID := intent.ID
		_, err := r.ledger.Hold(ctx, tx, ledger.HoldInput{
			OrderID:  intent.OrderID,
			BuyerID:  intent.BuyerID,
			IntentID: &intentID,
			Amount:   amount,
		})
		if err != nil && !errors.Is(err, ledger.ErrDuplicateHold) {
			return err
		}
	}

	confirmed, err := r.orders.ConfirmPayment(ctx, tx, intent.OrderID, intent.Method)
	if err != nil {
		return err
	}
	if !confirmed && intent.Method.HoldsFunds() {
		// Paid after the order was cancelled: hand the money straight back.
		if _, err := r.ledger.Refund(ctx, tx, intent.OrderID, "payment arrived after cancellation"); err != nil {
			return err
		}
		r.logg.Warn(r.logg.WithOrderID(ctx, intent.OrderID.String()), "late payment refunded")
	}
	return r.emit(ctx, tx, enums.EventPaymentSucceeded, intent)
}

func (r *Resolver) onFailure(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) error {
	if intent.Method == enums.PaymentMethodWallet {
		orderID := intent.OrderID
		if _, err := r.ledger.Credit(ctx, tx, ledger.EntryInput{
			AccountID: intent.BuyerID,
			OrderID:   &orderID,
			Amount:    money.New(intent.Amount, intent.Currency),
			Reference: "wallet_reversal:" + intent.ID.String(),
		}); err != nil {
			return err
		}
	}
	return r.emit(ctx, tx, enums.EventPaymentFailed, intent)
}

func (r *Resolver) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, intent *models.PaymentIntent) error {
	payload := payloads.PaymentResolvedEvent{
		IntentID:   intent.ID,
		OrderID:    intent.OrderID,
		Method:     intent.Method,
		Status:     intent.Status,
		Amount:     intent.Amount,
		Currency:   intent.Currency,
		RetryCount: intent.RetryCount,
		ResolvedAt: *intent.ResolvedAt,
	}
	if intent.FailureReason != nil {
		payload.FailureReason = *intent.FailureReason
	}
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		OccurredAt:    *intent.ResolvedAt,
		Data:          payload,
	})
}

func (r *Resolver) observe(ctx context.Context, intent *models.PaymentIntent) {
	if intent == nil {
		return
	}
	reason := ""
	if intent.FailureReason != nil {
		reason = string(*intent.FailureReason)
	}
	elapsed := time.Duration(0)
	if intent.ResolvedAt != nil && !intent.CreatedAt.IsZero() {
		elapsed = intent.ResolvedAt.Sub(intent.CreatedAt)
	}
	r.metrics.IntentResolved(string(intent.Method), string(intent.Status), reason, elapsed)

	logCtx := r.logg.WithIntentID(ctx, intent.ID.String())
	logCtx = r.logg.WithFields(logCtx, map[string]any{
		"order_id":    intent.OrderID.String(),
		"method":      intent.Method,
		"status":      intent.Status,
		"reason":      reason,
		"retry_count": intent.RetryCount,
	})
	r.logg.Info(logCtx, "payment intent resolved")
}
