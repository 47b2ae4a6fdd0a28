package checkout

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

// Repository persists the output of a split.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateMasterOrder(ctx context.Context, master *models.MasterOrder, subs []models.SubOrder) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a checkout repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateMasterOrder inserts the master, its sub-orders and their items.
func (r *repository) CreateMasterOrder(ctx context.Context, master *models.MasterOrder, subs []models.SubOrder) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("SubOrders").Create(master).Error; err != nil {
		return err
	}
	for i := range subs {
		if err := db.Omit("Items").Create(&subs[i]).Error; err != nil {
			return err
		}
		if len(subs[i].Items) == 0 {
			continue
		}
		if err := db.Create(&subs[i].Items).Error; err != nil {
			return err
		}
	}
	master.SubOrders = subs
	return nil
}
