// Package dto holds the JSON shapes shared by the settlement controllers.
// Amounts are integer minor units next to a display string.
package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

type Amount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

func NewAmount(minor int64, currency string) Amount {
	return Amount{Amount: minor, Currency: currency, Display: money.New(minor, currency).String()}
}

type Order struct {
	ID              uuid.UUID              `json:"id"`
	BuyerID         uuid.UUID              `json:"buyer_id"`
	TrackingID      string                 `json:"tracking_id"`
	Status          enums.OrderStatus      `json:"status"`
	Total           Amount                 `json:"total"`
	SellerCount     int                    `json:"seller_count"`
	IsSplitOrder    bool                   `json:"is_split_order"`
	PaymentMethod   *enums.PaymentMethod   `json:"payment_method,omitempty"`
	DeliveryAddress *types.DeliveryAddress `json:"delivery_address,omitempty"`
	CancelReason    *string                `json:"cancel_reason,omitempty"`
	PaidAt          *time.Time             `json:"paid_at,omitempty"`
	DeliveredAt     *time.Time             `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	SubOrders       []SubOrder             `json:"sub_orders"`
}

type SubOrder struct {
	ID          uuid.UUID         `json:"id"`
	SellerID    uuid.UUID         `json:"seller_id"`
	TrackingID  string            `json:"tracking_id"`
	Status      enums.OrderStatus `json:"status"`
	Subtotal    Amount            `json:"subtotal"`
	DeliveryFee Amount            `json:"delivery_fee"`
	Total       Amount            `json:"total"`
	Items       []Item            `json:"items,omitempty"`
}

type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	UnitPrice Amount    `json:"unit_price"`
	LineTotal Amount    `json:"line_total"`
}

func NewOrder(m *models.MasterOrder) Order {
	if m == nil {
		return Order{}
	}
	out := Order{
		ID:              m.ID,
		BuyerID:         m.BuyerID,
		TrackingID:      m.TrackingID,
		Status:          m.Status,
		Total:           NewAmount(m.TotalAmount, m.Currency),
		SellerCount:     m.SellerCount,
		IsSplitOrder:    m.IsSplitOrder,
		PaymentMethod:   m.PaymentMethod,
		DeliveryAddress: m.DeliveryAddress,
		CancelReason:    m.CancelReason,
		PaidAt:          m.PaidAt,
		DeliveredAt:     m.DeliveredAt,
		CancelledAt:     m.CancelledAt,
		CreatedAt:       m.CreatedAt,
		SubOrders:       make([]SubOrder, 0, len(m.SubOrders)),
	}
	for _, sub := range m.SubOrders {
		s := SubOrder{
			ID:          sub.ID,
			SellerID:    sub.SellerID,
			TrackingID:  sub.TrackingID,
			Status:      sub.Status,
			Subtotal:    NewAmount(sub.SubtotalAmount, sub.Currency),
			DeliveryFee: NewAmount(sub.DeliveryFeeAmount, sub.Currency),
			Total:       NewAmount(sub.TotalAmount, sub.Currency),
		}
		for _, item := range sub.Items {
			s.Items = append(s.Items, Item{
				ProductID: item.ProductID,
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: NewAmount(item.UnitPriceAmount, sub.Currency),
				LineTotal: NewAmount(item.LineTotalAmount, sub.Currency),
			})
		}
		out.SubOrders = append(out.SubOrders, s)
	}
	return out
}

type Intent struct {
	ID                uuid.UUID                   `json:"id"`
	OrderID           uuid.UUID                   `json:"order_id"`
	Method            enums.PaymentMethod         `json:"method"`
	Amount            Amount                      `json:"amount"`
	Status            enums.PaymentStatus         `json:"status"`
	ProviderReference *string                     `json:"provider_reference,omitempty"`
	ProviderStatus    string                      `json:"provider_status,omitempty"`
	RetryCount        int                         `json:"retry_count"`
	MaxRetries        int                         `json:"max_retries"`
	FailureReason     *enums.PaymentFailureReason `json:"failure_reason,omitempty"`
	ResolvedAt        *time.Time                  `json:"resolved_at,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
}

func NewIntent(m *models.PaymentIntent) *Intent {
	if m == nil {
		return nil
	}
	return &Intent{
		ID:                m.ID,
		OrderID:           m.OrderID,
		Method:            m.Method,
		Amount:            NewAmount(m.Amount, m.Currency),
		Status:            m.Status,
		ProviderReference: m.ProviderReference,
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		FailureReason:     m.FailureReason,
		ResolvedAt:        m.ResolvedAt,
		CreatedAt:         m.CreatedAt,
	}
}

type Reserve struct {
	ID         uuid.UUID           `json:"id"`
	OrderID    uuid.UUID           `json:"order_id"`
	Status     enums.ReserveStatus `json:"status"`
	Amount     Amount              `json:"amount"`
	Reason     *string             `json:"reason,omitempty"`
	FrozenAt   *time.Time          `json:"frozen_at,omitempty"`
	ReleasedAt *time.Time          `json:"released_at,omitempty"`
	RefundedAt *time.Time          `json:"refunded_at,omitempty"`
}

func NewReserve(m *models.ReserveEntry) *Reserve {
	if m == nil {
		return nil
	}
	return &Reserve{
		ID:         m.ID,
		OrderID:    m.OrderID,
		Status:     m.Status,
		Amount:     NewAmount(m.Amount, m.Currency),
		Reason:     m.Reason,
		FrozenAt:   m.FrozenAt,
		ReleasedAt: m.ReleasedAt,
		RefundedAt: m.RefundedAt,
	}
}

type Transaction struct {
	ID        uuid.UUID             `json:"id"`
	OrderID   *uuid.UUID            `json:"order_id,omitempty"`
	Type      enums.TransactionType `json:"type"`
	Amount    Amount                `json:"amount"`
	Reference string                `json:"reference"`
	CreatedAt time.Time             `json:"created_at"`
}

func NewTransaction(m models.TransactionRecord) Transaction {
	return Transaction{
		ID:        m.ID,
		OrderID:   m.OrderID,
		Type:      m.Type,
		Amount:    NewAmount(m.Amount, m.Currency),
		Reference: m.Reference,
		CreatedAt: m.CreatedAt,
	}
}

type Payout struct {
	SellerID uuid.UUID `json:"seller_id"`
	Amount   int64     `json:"amount"`
}

func NewPayouts(in []payloads.Payout) []Payout {
	out := make([]Payout, 0, len(in))
	for _, p := range in {
		out = append(out, Payout{SellerID: p.SellerID, Amount: p.Amount})
	}
	return out
}
