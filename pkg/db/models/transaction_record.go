package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// TransactionRecord is an immutable ledger line. Balances are folds over
// these rows.
type TransactionRecord struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AccountID uuid.UUID             `gorm:"column:account_id;type:uuid;not null"`
	OrderID   *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	Type      enums.TransactionType `gorm:"column:type;type:text;not null"`
	Amount    int64                 `gorm:"column:amount;not null"`
	Currency  string                `gorm:"column:currency;type:text;not null"`
	Reference string                `gorm:"column:reference;not null"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// LedgerAccount exists so wallet writers can lock one row per account.
type LedgerAccount struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
