package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

var (
	// ErrEmptyCart is returned when a checkout has no lines.
	ErrEmptyCart = errors.New("cart has no items")
	// ErrUnknownSeller is returned when a line references a seller that does
	// not exist or is inactive.
	ErrUnknownSeller = errors.New("cart references unknown seller")
)

// CartLine is one product line as submitted at checkout.
type CartLine struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Name      string
	UnitPrice money.Money
	Quantity  int64
}

// SellerGroup is the set of lines belonging to one seller, in cart order.
type SellerGroup struct {
	SellerID uuid.UUID
	Lines    []CartLine
	Subtotal money.Money
}

// FeeFunc returns the delivery fee in minor units for one seller group.
type FeeFunc func(group SellerGroup) int64

// FlatFee charges base plus perItem for every line in the group.
func FlatFee(base, perItem int64) FeeFunc {
	return func(group SellerGroup) int64 {
		return base + perItem*int64(len(group.Lines))
	}
}

// IDGenerator produces human-facing tracking ids.
type IDGenerator func() string

// SellerLookup resolves which sellers can receive orders.
type SellerLookup interface {
	FindActive(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error)
}

// SplitResult is an unsaved master order and its sub-orders.
type SplitResult struct {
	Master    models.MasterOrder
	SubOrders []models.SubOrder
}

// Splitter turns a cart into one master order and one sub-order per seller.
type Splitter struct {
	fee FeeFunc
	ids IDGenerator
	now func() time.Time
}

// NewSplitter builds a Splitter from a fee policy and a tracking id source.
func NewSplitter(fee FeeFunc, ids IDGenerator) (*Splitter, error) {
	if fee == nil {
		return nil, fmt.Errorf("fee func required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator required")
	}
	return &Splitter{fee: fee, ids: ids, now: time.Now}, nil
}

// Split groups lines by seller in first-seen order. It has no side effects.
func (s *Splitter) Split(ctx context.Context, buyerID uuid.UUID, lines []CartLine, sellers SellerLookup) (*SplitResult, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyCart, "cart is empty")
	}
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if sellers == nil {
		return nil, fmt.Errorf("seller lookup required")
	}

	currency, err := validateLines(lines)
	if err != nil {
		return nil, err
	}

	groups, err := groupBySeller(lines, currency)
	if err != nil {
		return nil, err
	}

	sellerIDs := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		sellerIDs = append(sellerIDs, g.SellerID)
	}
	known, err := sellers.FindActive(ctx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup sellers")
	}
	var missing []string
	for _, id := range sellerIDs {
		if _, ok := known[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrUnknownSeller, "unknown seller in cart").
			WithDetails(map[string]any{"seller_ids": missing})
	}

	now := s.now().UTC()
	master := models.MasterOrder{
		ID:           uuid.New(),
		BuyerID:      buyerID,
		TrackingID:   s.ids(),
		Status:       enums.OrderStatusPending,
		Currency:     currency,
		SellerCount:  len(groups),
		IsSplitOrder: len(groups) > 1,
		CreatedAt:    now,
	}

	subs := make([]models.SubOrder, 0, len(groups))
	for i, g := range groups {
		fee := s.fee(g)
		if fee < 0 {
			return nil, fmt.Errorf("negative delivery fee %d for seller %s", fee, g.SellerID)
		}
		subTotal, err := g.Subtotal.Add(money.New(fee, currency))
		if err != nil {
			return nil, outOfRange(err, "sub-order total out of range")
		}
		sub := models.SubOrder{
			ID:                uuid.New(),
			MasterOrderID:     master.ID,
			SellerID:          g.SellerID,
			TrackingID:        s.ids(),
			Position:          i,
			Status:            enums.OrderStatusPending,
			Currency:          currency,
			SubtotalAmount:    g.Subtotal.Amount,
			DeliveryFeeAmount: fee,
			TotalAmount:       subTotal.Amount,
			CreatedAt:         now,
		}
		for j, line := range g.Lines {
			lineTotal, _ := line.UnitPrice.Mul(line.Quantity)
			sub.Items = append(sub.Items, models.SubOrderItem{
				ID:              uuid.New(),
				SubOrderID:      sub.ID,
				ProductID:       line.ProductID,
				Name:            line.Name,
				UnitPriceAmount: line.UnitPrice.Amount,
				Quantity:        line.Quantity,
				LineTotalAmount: lineTotal.Amount,
				Position:        j,
				CreatedAt:       now,
			})
		}
		orderTotal, err := money.New(master.TotalAmount, currency).Add(subTotal)
		if err != nil {
			return nil, outOfRange(err, "order total out of range")
		}
		master.TotalAmount = orderTotal.Amount
		subs = append(subs, sub)
	}

	return &SplitResult{Master: master, SubOrders: subs}, nil
}

func validateLines(lines []CartLine) (string, error) {
	currency := ""
	for i, line := range lines {
		field := fmt.Sprintf("items[%d]", i)
		if line.ProductID == uuid.Nil {
			return "", lineError(field, "product id required")
		}
		if line.SellerID == uuid.Nil {
			return "", lineError(field, "seller id required")
		}
		if line.Quantity <= 0 {
			return "", lineError(field, "quantity must be positive")
		}
		if !line.UnitPrice.IsPositive() {
			return "", lineError(field, "unit price must be positive")
		}
		if !money.ValidCurrency(line.UnitPrice.Currency) {
			return "", lineError(field, "invalid currency")
		}
		c := money.NormalizeCurrency(line.UnitPrice.Currency)
		if currency == "" {
			currency = c
		} else if c != currency {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "cart mixes currencies").
				WithDetails(map[string]any{"currencies": []string{currency, c}})
		}
	}
	return currency, nil
}

func groupBySeller(lines []CartLine, currency string) ([]SellerGroup, error) {
	index := map[uuid.UUID]int{}
	var groups []SellerGroup
	for _, line := range lines {
		line.Name = strings.TrimSpace(line.Name)
		lineTotal, err := line.UnitPrice.Mul(line.Quantity)
		if err != nil {
			return nil, outOfRange(err, "line total out of range")
		}
		pos, ok := index[line.SellerID]
		if !ok {
			pos = len(groups)
			index[line.SellerID] = pos
			groups = append(groups, SellerGroup{SellerID: line.SellerID, Subtotal: money.Zero(currency)})
		}
		g := &groups[pos]
		g.Lines = append(g.Lines, line)
		subtotal, err := g.Subtotal.Add(lineTotal)
		if err != nil {
			return nil, outOfRange(err, "seller subtotal out of range")
		}
		g.Subtotal = subtotal
	}
	return groups, nil
}

func outOfRange(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg)
}

func lineError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
