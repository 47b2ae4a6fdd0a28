package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// ReserveEntry is the escrow hold for one master order.
type ReserveEntry struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	BuyerID    uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	IntentID   *uuid.UUID          `gorm:"column:intent_id;type:uuid"`
	Amount     int64               `gorm:"column:amount;not null"`
	Currency   string              `gorm:"column:currency;type:text;not null"`
	Status     enums.ReserveStatus `gorm:"column:status;type:text;not null"`
	Reason     *string             `gorm:"column:reason"`
	ReleasedAt *time.Time          `gorm:"column:released_at"`
	RefundedAt *time.Time          `gorm:"column:refunded_at"`
	FrozenAt   *time.Time          `gorm:"column:frozen_at"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
