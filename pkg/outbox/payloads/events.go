package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// OrderCreatedEvent announces a checkout split into sub-orders.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID   `json:"order_id"`
	BuyerID      uuid.UUID   `json:"buyer_id"`
	TrackingID   string      `json:"tracking_id"`
	SubOrderIDs  []uuid.UUID `json:"sub_order_ids"`
	SellerIDs    []uuid.UUID `json:"seller_ids"`
	TotalAmount  int64       `json:"total_amount"`
	Currency     string      `json:"currency"`
	IsSplitOrder bool        `json:"is_split_order"`
}

// OrderStateChangedEvent is emitted for master transitions and for the
// sub-order that caused them.
type OrderStateChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	SubOrderID *uuid.UUID        `json:"sub_order_id,omitempty"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	Reason     string            `json:"reason,omitempty"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// PaymentResolvedEvent covers both payment_succeeded and payment_failed.
type PaymentResolvedEvent struct {
	IntentID      uuid.UUID                  `json:"intent_id"`
	OrderID       uuid.UUID                  `json:"order_id"`
	Method        enums.PaymentMethod        `json:"method"`
	Status        enums.PaymentStatus        `json:"status"`
	Amount        int64                      `json:"amount"`
	Currency      string                     `json:"currency"`
	RetryCount    int                        `json:"retry_count"`
	FailureReason enums.PaymentFailureReason `json:"failure_reason,omitempty"`
	ResolvedAt    time.Time                  `json:"resolved_at"`
}

// ReserveEvent covers the reserve_* lifecycle events.
type ReserveEvent struct {
	ReserveID uuid.UUID           `json:"reserve_id"`
	OrderID   uuid.UUID           `json:"order_id"`
	Status    enums.ReserveStatus `json:"status"`
	Amount    int64               `json:"amount"`
	Currency  string              `json:"currency"`
	Reason    string              `json:"reason,omitempty"`
	Payouts   []Payout            `json:"payouts,omitempty"`
}

// Payout is one seller credit produced by a release.
type Payout struct {
	SellerID uuid.UUID `json:"seller_id"`
	Amount   int64     `json:"amount"`
}

// WalletCreditedEvent is emitted for top-ups.
type WalletCreditedEvent struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Reference string    `json:"reference"`
}
