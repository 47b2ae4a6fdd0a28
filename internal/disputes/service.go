// Package disputes bridges the external dispute workflow to escrow: an
// open dispute freezes settlement and a resolution settles exactly once.
package disputes

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type escrow interface {
	Freeze(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.ReserveEntry, error)
	Unfreeze(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.ReserveEntry, error)
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.TransactionRecord, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.TransactionRecord, error)
	Status(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.ReserveStatus, error)
}

type orderMachine interface {
	Lock(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.MasterOrder, error)
	ForceCancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.MasterOrder, error)
	ForceDeliver(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.MasterOrder, error)
}

// Settlement names what a resolution did with the escrow.
type Settlement string

const (
	SettlementRefund  Settlement = "refund"
	SettlementRelease Settlement = "release"
)

type Service interface {
	Opened(ctx context.Context, input OpenedInput) (*models.ReserveEntry, error)
	Resolved(ctx context.Context, input ResolvedInput) (*Resolution, error)
}

type OpenedInput struct {
	OrderID   uuid.UUID
	DisputeID string
	Reason    string
}

type ResolvedInput struct {
	OrderID   uuid.UUID
	DisputeID string
	Outcome   enums.DisputeOutcome
}

type Resolution struct {
	Settled Settlement
	Order   *models.MasterOrder
	// Replayed is set when the escrow already carried this outcome and
	// nothing moved.
	Replayed bool
}

// settledBy maps each outcome to the reserve status it leaves behind.
var settledBy = map[enums.DisputeOutcome]struct {
	status     enums.ReserveStatus
	settlement Settlement
}{
	enums.DisputeFavorBuyer:  {enums.ReserveStatusRefunded, SettlementRefund},
	enums.DisputeFavorSeller: {enums.ReserveStatusReleased, SettlementRelease},
}

type service struct {
	ledger escrow
	orders orderMachine
	tx     txRunner
	logg   *logger.Logger
}

func NewService(ledgerSvc escrow, machine orderMachine, tx txRunner, logg *logger.Logger) (Service, error) {
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if machine == nil {
		return nil, fmt.Errorf("order machine required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{ledger: ledgerSvc, orders: machine, tx: tx, logg: logg}, nil
}

// Opened freezes the order's reserve. Orders without an active hold have
// nothing to protect and are rejected.
func (s *service) Opened(ctx context.Context, input OpenedInput) (*models.ReserveEntry, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	reason := "dispute opened"
	if input.Reason != "" {
		reason = "dispute opened: " + input.Reason
	}

	var entry *models.ReserveEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orders.Lock(ctx, tx, input.OrderID); err != nil {
			return err
		}
		var err error
		entry, err = s.ledger.Freeze(ctx, tx, input.OrderID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.fields(ctx, input.OrderID, input.DisputeID), "dispute opened, reserve frozen")
	return entry, nil
}

// Resolved unfreezes and settles in one transaction: the buyer is refunded
// and the order cancelled, or the order is delivered and sellers are paid.
func (s *service) Resolved(ctx context.Context, input ResolvedInput) (*Resolution, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outcome must be favor_buyer or favor_seller")
	}
	reason := "dispute resolved " + input.Outcome.String()

	result := &Resolution{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Lock(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		current, err := s.ledger.Status(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if want := settledBy[input.Outcome]; current == want.status {
			result.Settled = want.settlement
			result.Order = order
			result.Replayed = true
			return nil
		}
		if _, err := s.ledger.Unfreeze(ctx, tx, input.OrderID); err != nil {
			return err
		}

		switch input.Outcome {
		case enums.DisputeFavorBuyer:
			result.Settled = SettlementRefund
			if _, err = s.ledger.Refund(ctx, tx, input.OrderID, reason); err != nil {
				return err
			}
			result.Order, err = s.orders.ForceCancel(ctx, tx, input.OrderID, reason)
		case enums.DisputeFavorSeller:
			result.Settled = SettlementRelease
			if result.Order, err = s.orders.ForceDeliver(ctx, tx, input.OrderID, reason); err != nil {
				return err
			}
			_, err = s.ledger.Release(ctx, tx, input.OrderID, reason)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithField(s.fields(ctx, input.OrderID, input.DisputeID), "settled", result.Settled)
	if result.Replayed {
		s.logg.Info(logCtx, "dispute resolution already applied")
		return result, nil
	}
	s.logg.Info(logCtx, "dispute resolved")
	return result, nil
}

func (s *service) fields(ctx context.Context, orderID uuid.UUID, disputeID string) context.Context {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	if disputeID != "" {
		ctx = s.logg.WithField(ctx, "dispute_id", disputeID)
	}
	return ctx
}
