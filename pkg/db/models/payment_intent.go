package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// PaymentIntent is one attempt at paying a master order. Method and amount
// never change after insert; status leaves processing exactly once.
type PaymentIntent struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                   `gorm:"column:order_id;type:uuid;not null"`
	BuyerID           uuid.UUID                   `gorm:"column:buyer_id;type:uuid;not null"`
	Method            enums.PaymentMethod         `gorm:"column:method;type:text;not null"`
	Amount            int64                       `gorm:"column:amount;not null"`
	Currency          string                      `gorm:"column:currency;type:text;not null"`
	ProviderReference *string                     `gorm:"column:provider_reference"`
	Status            enums.PaymentStatus         `gorm:"column:status;type:text;not null;default:'processing'"`
	RetryCount        int                         `gorm:"column:retry_count;not null;default:0"`
	MaxRetries        int                         `gorm:"column:max_retries;not null;default:3"`
	FailureReason     *enums.PaymentFailureReason `gorm:"column:failure_reason;type:text"`
	IdempotencyKey    *string                     `gorm:"column:idempotency_key"`
	ResolvedAt        *time.Time                  `gorm:"column:resolved_at"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
