package models

import (
	"time"

	"github.com/google/uuid"
)

// Seller is a farmer able to receive escrow releases. Its ID doubles as the
// ledger account that release credits land in.
type Seller struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Phone       *string   `gorm:"column:phone"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
