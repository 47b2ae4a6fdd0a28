package sellers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

// Repository reads and writes the sellers table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, seller *models.Seller) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
	FindActive(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a sellers repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, seller *models.Seller) error {
	if seller.ID == uuid.Nil {
		seller.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(seller).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

// FindActive returns the active sellers among ids, keyed by id. Unknown or
// inactive ids are simply absent from the map.
func (r *repository) FindActive(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error) {
	out := make(map[uuid.UUID]models.Seller, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Seller
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("active = ?", true).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
