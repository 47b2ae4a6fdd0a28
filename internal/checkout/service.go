package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service executes checkout: split, persist, announce.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.MasterOrder, error)
}

// CheckoutInput is the buyer's cart plus delivery details.
type CheckoutInput struct {
	BuyerID         uuid.UUID
	Lines           []CartLine
	DeliveryAddress *types.DeliveryAddress
}

type service struct {
	splitter *Splitter
	sellers  SellerLookup
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(splitter *Splitter, sellers SellerLookup, repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if splitter == nil {
		return nil, fmt.Errorf("splitter required")
	}
	if sellers == nil {
		return nil, fmt.Errorf("seller lookup required")
	}
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		splitter: splitter,
		sellers:  sellers,
		repo:     repo,
		tx:       tx,
		outbox:   publisher,
		logg:     logg,
	}, nil
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.MasterOrder, error) {
	if input.DeliveryAddress != nil {
		if err := input.DeliveryAddress.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery address")
		}
	}

	split, err := s.splitter.Split(ctx, input.BuyerID, input.Lines, s.sellers)
	if err != nil {
		return nil, err
	}
	master := split.Master
	master.DeliveryAddress = input.DeliveryAddress

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateMasterOrder(ctx, &master, split.SubOrders); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist master order")
		}

		event := payloads.OrderCreatedEvent{
			OrderID:      master.ID,
			BuyerID:      master.BuyerID,
			TrackingID:   master.TrackingID,
			TotalAmount:  master.TotalAmount,
			Currency:     master.Currency,
			IsSplitOrder: master.IsSplitOrder,
		}
		for _, sub := range split.SubOrders {
			event.SubOrderIDs = append(event.SubOrderIDs, sub.ID)
			event.SellerIDs = append(event.SellerIDs, sub.SellerID)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateMasterOrder,
			AggregateID:   master.ID,
			Actor:         &outbox.ActorRef{UserID: master.BuyerID, Role: enums.ActorRoleBuyer.String()},
			Data:          event,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, master.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"seller_count": master.SellerCount,
		"total_amount": master.TotalAmount,
		"currency":     master.Currency,
	})
	s.logg.Info(logCtx, "order split and created")
	master.SubOrders = split.SubOrders
	return &master, nil
}
