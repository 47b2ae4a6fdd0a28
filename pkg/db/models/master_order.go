package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

// MasterOrder is the buyer-facing order produced by one checkout. Status is
// the aggregate of its sub-orders.
type MasterOrder struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID         uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null"`
	TrackingID      string                 `gorm:"column:tracking_id;not null"`
	Status          enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency        string                 `gorm:"column:currency;type:text;not null"`
	TotalAmount     int64                  `gorm:"column:total_amount;not null"`
	SellerCount     int                    `gorm:"column:seller_count;not null"`
	IsSplitOrder    bool                   `gorm:"column:is_split_order;not null"`
	DeliveryAddress *types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb"`
	PaymentMethod   *enums.PaymentMethod   `gorm:"column:payment_method;type:text"`
	CancelReason    *string                `gorm:"column:cancel_reason"`
	PaidAt          *time.Time             `gorm:"column:paid_at"`
	DeliveredAt     *time.Time             `gorm:"column:delivered_at"`
	CancelledAt     *time.Time             `gorm:"column:cancelled_at"`
	SubOrders       []SubOrder             `gorm:"foreignKey:MasterOrderID"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// SubOrder is the per-seller slice of a master order, tracked on its own.
type SubOrder struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	MasterOrderID     uuid.UUID         `gorm:"column:master_order_id;type:uuid;not null"`
	SellerID          uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	TrackingID        string            `gorm:"column:tracking_id;not null"`
	Position          int               `gorm:"column:position;not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency          string            `gorm:"column:currency;type:text;not null"`
	SubtotalAmount    int64             `gorm:"column:subtotal_amount;not null"`
	DeliveryFeeAmount int64             `gorm:"column:delivery_fee_amount;not null;default:0"`
	TotalAmount       int64             `gorm:"column:total_amount;not null"`
	DeliveredAt       *time.Time        `gorm:"column:delivered_at"`
	CancelledAt       *time.Time        `gorm:"column:cancelled_at"`
	Items             []SubOrderItem    `gorm:"foreignKey:SubOrderID"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// SubOrderItem snapshots a cart line at checkout time.
type SubOrderItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SubOrderID      uuid.UUID `gorm:"column:sub_order_id;type:uuid;not null"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name            string    `gorm:"column:name;not null"`
	UnitPriceAmount int64     `gorm:"column:unit_price_amount;not null"`
	Quantity        int64     `gorm:"column:quantity;not null"`
	LineTotalAmount int64     `gorm:"column:line_total_amount;not null"`
	Position        int       `gorm:"column:position;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
