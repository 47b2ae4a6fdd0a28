package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

// Repository defines persistence operations for master and sub-orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockMaster(ctx context.Context, id uuid.UUID) (*models.MasterOrder, error)
	FindMaster(ctx context.Context, id uuid.UUID) (*models.MasterOrder, error)
	LatestIntent(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	UpdateMaster(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateSubOrders(ctx context.Context, ids []uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockMaster row-locks the master order and loads its sub-orders in position
// order. Every writer of order state goes through it first.
func (r *repository) LockMaster(ctx context.Context, id uuid.UUID) (*models.MasterOrder, error) {
	var order models.MasterOrder
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	if err := db.Where("master_order_id = ?", id).
		Order("position ASC").
		Find(&order.SubOrders).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindMaster(ctx context.Context, id uuid.UUID) (*models.MasterOrder, error) {
	var order models.MasterOrder
	err := r.db.WithContext(ctx).
		Preload("SubOrders", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("SubOrders.Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LatestIntent(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) UpdateMaster(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.MasterOrder{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateSubOrders(ctx context.Context, ids []uuid.UUID, updates map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.SubOrder{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}
