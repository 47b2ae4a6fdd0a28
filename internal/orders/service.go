package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/ledger"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type escrow interface {
	Status(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.ReserveStatus, error)
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.TransactionRecord, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.TransactionRecord, error)
}

// IntentCanceller fails any in-flight payment intent of an order being
// cancelled. The payments dispatcher implements it.
type IntentCanceller interface {
	CancelForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// Service exposes order reads and the buyer, seller and logistics driven
// transitions.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, actor types.Actor) (*OrderDetail, error)
	ConfirmDelivery(ctx context.Context, orderID uuid.UUID, actor types.Actor) (*DeliveryResult, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor types.Actor, reason string) (*models.MasterOrder, error)
	ReportProgress(ctx context.Context, input ProgressInput) (*models.MasterOrder, error)
}

// OrderDetail is an order with its settlement context.
type OrderDetail struct {
	Order         *models.MasterOrder
	ReserveStatus enums.ReserveStatus
	LatestIntent  *models.PaymentIntent
}

// DeliveryResult reports whether a delivery confirmation released escrow.
type DeliveryResult struct {
	Order    *models.MasterOrder
	Released bool
	Payouts  []payloads.Payout
}

// ProgressInput is a sub-order status report from a seller or logistics.
type ProgressInput struct {
	OrderID    uuid.UUID
	SubOrderID uuid.UUID
	Status     enums.OrderStatus
	Actor      types.Actor
}

type service struct {
	repo    Repository
	machine *Machine
	ledger  escrow
	intents IntentCanceller
	tx      txRunner
	logg    *logger.Logger
}

// NewService wires the order service.
func NewService(repo Repository, machine *Machine, ledgerSvc escrow, intents IntentCanceller, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if machine == nil {
		return nil, fmt.Errorf("order machine required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if intents == nil {
		return nil, fmt.Errorf("intent canceller required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		machine: machine,
		ledger:  ledgerSvc,
		intents: intents,
		tx:      tx,
		logg:    logg,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor types.Actor) (*OrderDetail, error) {
	order, err := s.repo.FindMaster(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !canView(order, actor) {
		// Hide existence from unrelated callers.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	status, err := s.ledger.Status(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	detail := &OrderDetail{Order: order, ReserveStatus: status}

	intent, err := s.repo.LatestIntent(ctx, orderID)
	switch {
	case err == nil:
		detail.LatestIntent = intent
	case !db.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest intent")
	}
	return detail, nil
}

func (s *service) ConfirmDelivery(ctx context.Context, orderID uuid.UUID, actor types.Actor) (*DeliveryResult, error) {
	if !actor.Is(enums.ActorRoleBuyer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
	}
	result := &DeliveryResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.machine.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		result.Order = order

		switch order.Status {
		case enums.OrderStatusDelivered:
			return nil
		case enums.OrderStatusShipped:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has not shipped").
				WithDetails(map[string]any{"status": order.Status})
		}

		ref := &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
		if err := s.machine.deliver(ctx, tx, order, "buyer confirmed delivery", ref, func(sub models.SubOrder) bool {
			return sub.Status == enums.OrderStatusShipped
		}); err != nil {
			return err
		}
		return s.settleDelivered(ctx, tx, order, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settleDelivered releases escrow for a freshly delivered order. A frozen
// reserve fails the whole confirmation so delivery and release stay atomic.
func (s *service) settleDelivered(ctx context.Context, tx *gorm.DB, order *models.MasterOrder, result *DeliveryResult) error {
	if order.PaymentMethod != nil && !order.PaymentMethod.HoldsFunds() {
		return nil
	}
	records, err := s.ledger.Release(ctx, tx, order.ID, "delivery confirmed")
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyReleased) {
			s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "release already applied")
			return nil
		}
		return err
	}
	result.Released = true
	for _, record := range records {
		result.Payouts = append(result.Payouts, payloads.Payout{SellerID: record.AccountID, Amount: record.Amount})
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor types.Actor, reason string) (*models.MasterOrder, error) {
	if reason == "" {
		reason = "cancelled by " + string(actor.Role)
	}
	var out *models.MasterOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.machine.lock(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !canCancel(order, actor) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to cancel this order")
		}
		if !CanTransition(order.Status, enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}

		if err := s.intents.CancelForOrder(ctx, tx, orderID); err != nil {
			return err
		}
		status, err := s.ledger.Status(ctx, tx, orderID)
		if err != nil {
			return err
		}
		switch status {
		case enums.ReserveStatusHeld:
			if _, err := s.ledger.Refund(ctx, tx, orderID, reason); err != nil {
				return err
			}
		case enums.ReserveStatusFrozen:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is under dispute")
		}

		ref := &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
		if err := s.machine.cancel(ctx, tx, order, reason, ref); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) ReportProgress(ctx context.Context, input ProgressInput) (*models.MasterOrder, error) {
	switch input.Status {
	case enums.OrderStatusPacked, enums.OrderStatusShipped, enums.OrderStatusDelivered:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be packed, shipped or delivered")
	}
	if !input.Actor.Is(enums.ActorRoleSeller) && !input.Actor.Is(enums.ActorRoleLogistics) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers and logistics report progress")
	}

	var out *models.MasterOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.machine.lock(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		sub := findSubOrder(order, input.SubOrderID)
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found")
		}
		if input.Actor.Is(enums.ActorRoleSeller) && !input.Actor.OwnsSeller(sub.SellerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "sub-order belongs to another seller")
		}
		out = order
		if sub.Status == input.Status {
			return nil
		}
		if order.Status.IsTerminal() || !CanAdvanceSubOrder(sub.Status, input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid sub-order transition").
				WithDetails(map[string]any{"from": sub.Status, "to": input.Status})
		}

		from := sub.Status
		ref := &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)}
		if err := s.machine.moveSubs(ctx, tx, order, input.Status, func(candidate models.SubOrder) bool {
			return candidate.ID == sub.ID
		}); err != nil {
			return err
		}
		now := s.machine.now().UTC()
		subID := sub.ID
		if err := s.machine.emit(ctx, tx, order.ID, &subID, from, input.Status, "sub-order progress", now, ref); err != nil {
			return err
		}

		next := masterProjection(order)
		if next == order.Status {
			return nil
		}
		return s.machine.moveMaster(ctx, tx, order, next, "sub-order progress", nil, ref)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// masterProjection is the aggregate of the sub-orders, held at shipped until
// the buyer (or a dispute) confirms delivery.
func masterProjection(order *models.MasterOrder) enums.OrderStatus {
	statuses := make([]enums.OrderStatus, 0, len(order.SubOrders))
	for _, sub := range order.SubOrders {
		statuses = append(statuses, sub.Status)
	}
	next := AggregateStatus(statuses)
	if next == enums.OrderStatusDelivered {
		return enums.OrderStatusShipped
	}
	return next
}

func findSubOrder(order *models.MasterOrder, id uuid.UUID) *models.SubOrder {
	for i := range order.SubOrders {
		if order.SubOrders[i].ID == id {
			return &order.SubOrders[i]
		}
	}
	return nil
}

func canView(order *models.MasterOrder, actor types.Actor) bool {
	switch actor.Role {
	case enums.ActorRoleLogistics, enums.ActorRoleDisputeService:
		return true
	case enums.ActorRoleBuyer:
		return order.BuyerID == actor.UserID
	case enums.ActorRoleSeller:
		for _, sub := range order.SubOrders {
			if actor.OwnsSeller(sub.SellerID) {
				return true
			}
		}
	}
	return false
}

func canCancel(order *models.MasterOrder, actor types.Actor) bool {
	switch actor.Role {
	case enums.ActorRoleBuyer:
		return order.BuyerID == actor.UserID
	case enums.ActorRoleSeller:
		return canView(order, actor)
	}
	return false
}
