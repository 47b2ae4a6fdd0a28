package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Machine applies order status changes driven by payments and disputes.
// All methods run inside the caller's transaction.
type Machine struct {
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

func NewMachine(repo Repository, publisher outboxPublisher, logg *logger.Logger) (*Machine, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Machine{repo: repo, outbox: publisher, logg: logg, now: time.Now}, nil
}

// ConfirmPayment moves a pending order and its sub-orders to confirmed. It
// returns false without error when the order was cancelled while the
// payment was in flight.
func (m *Machine) ConfirmPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, method enums.PaymentMethod) (bool, error) {
	order, err := m.lock(ctx, tx, orderID)
	if err != nil {
		return false, err
	}
	switch order.Status {
	case enums.OrderStatusCancelled:
		return false, nil
	case enums.OrderStatusPending:
	default:
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}

	if err := m.moveSubs(ctx, tx, order, enums.OrderStatusConfirmed, func(sub models.SubOrder) bool {
		return sub.Status == enums.OrderStatusPending
	}); err != nil {
		return false, err
	}
	now := m.now().UTC()
	order.PaymentMethod = &method
	order.PaidAt = &now
	if err := m.moveMaster(ctx, tx, order, enums.OrderStatusConfirmed, "payment confirmed", map[string]any{
		"payment_method": method,
		"paid_at":        now,
	}, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ForceCancel cancels an order regardless of its progress. Dispute
// resolutions in the buyer's favour use it after the refund.
func (m *Machine) ForceCancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.MasterOrder, error) {
	order, err := m.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled {
		return order, nil
	}
	if order.Status == enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivered orders cannot be cancelled")
	}
	if err := m.cancel(ctx, tx, order, reason, nil); err != nil {
		return nil, err
	}
	return order, nil
}

// ForceDeliver marks every open sub-order and the master delivered.
// Dispute resolutions in the seller's favour use it before the release.
func (m *Machine) ForceDeliver(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.MasterOrder, error) {
	order, err := m.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case enums.OrderStatusDelivered:
		return order, nil
	case enums.OrderStatusCancelled, enums.OrderStatusPending:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be delivered").
			WithDetails(map[string]any{"status": order.Status})
	}
	if err := m.deliver(ctx, tx, order, reason, nil, func(sub models.SubOrder) bool {
		return sub.Status != enums.OrderStatusCancelled && sub.Status != enums.OrderStatusDelivered
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// Lock row-locks the order within tx. Callers that touch escrow before the
// order status take it first to keep lock order consistent.
func (m *Machine) Lock(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.MasterOrder, error) {
	return m.lock(ctx, tx, orderID)
}

func (m *Machine) lock(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.MasterOrder, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for order transition")
	}
	order, err := m.repo.WithTx(tx).LockMaster(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (m *Machine) cancel(ctx context.Context, tx *gorm.DB, order *models.MasterOrder, reason string, actor *outbox.ActorRef) error {
	if err := m.moveSubs(ctx, tx, order, enums.OrderStatusCancelled, func(sub models.SubOrder) bool {
		return sub.Status != enums.OrderStatusCancelled && sub.Status != enums.OrderStatusDelivered
	}); err != nil {
		return err
	}
	order.CancelReason = &reason
	return m.moveMaster(ctx, tx, order, enums.OrderStatusCancelled, reason, map[string]any{"cancel_reason": reason}, actor)
}

func (m *Machine) deliver(ctx context.Context, tx *gorm.DB, order *models.MasterOrder, reason string, actor *outbox.ActorRef, match func(models.SubOrder) bool) error {
	if err := m.moveSubs(ctx, tx, order, enums.OrderStatusDelivered, match); err != nil {
		return err
	}
	return m.moveMaster(ctx, tx, order, enums.OrderStatusDelivered, reason, nil, actor)
}

func (m *Machine) moveMaster(ctx context.Context, tx *gorm.DB, order *models.MasterOrder, to enums.OrderStatus, reason string, fields map[string]any, actor *outbox.ActorRef) error {
	from := order.Status
	now := m.now().UTC()
	updates := map[string]any{"status": to, "updated_at": now}
	switch to {
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
		order.DeliveredAt = &now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
		order.CancelledAt = &now
	}
	for k, v := range fields {
		updates[k] = v
	}
	if err := m.repo.WithTx(tx).UpdateMaster(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	order.Status = to

	if err := m.emit(ctx, tx, order.ID, nil, from, to, reason, now, actor); err != nil {
		return err
	}
	logCtx := m.logg.WithOrderID(ctx, order.ID.String())
	logCtx = m.logg.WithFields(logCtx, map[string]any{"from": from, "to": to, "reason": reason})
	m.logg.Info(logCtx, "order status changed")
	return nil
}

func (m *Machine) moveSubs(ctx context.Context, tx *gorm.DB, order *models.MasterOrder, to enums.OrderStatus, match func(models.SubOrder) bool) error {
	now := m.now().UTC()
	var ids []uuid.UUID
	for i := range order.SubOrders {
		sub := &order.SubOrders[i]
		if !match(*sub) {
			continue
		}
		ids = append(ids, sub.ID)
		sub.Status = to
		switch to {
		case enums.OrderStatusDelivered:
			sub.DeliveredAt = &now
		case enums.OrderStatusCancelled:
			sub.CancelledAt = &now
		}
	}
	updates := map[string]any{"status": to, "updated_at": now}
	switch to {
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
	}
	if err := m.repo.WithTx(tx).UpdateSubOrders(ctx, ids, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sub-orders")
	}
	return nil
}

func (m *Machine) emit(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, subOrderID *uuid.UUID, from, to enums.OrderStatus, reason string, at time.Time, actor *outbox.ActorRef) error {
	return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateMasterOrder,
		AggregateID:   orderID,
		Actor:         actor,
		OccurredAt:    at,
		Data: payloads.OrderStateChangedEvent{
			OrderID:    orderID,
			SubOrderID: subOrderID,
			From:       from,
			To:         to,
			Reason:     reason,
			ChangedAt:  at,
		},
	})
}
