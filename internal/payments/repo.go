package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Repository persists payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.MasterOrder, error)
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindProcessing(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	// CountFailed counts failed intents that used up a payment attempt.
	CountFailed(ctx context.Context, orderID uuid.UUID) (int64, error)
	SetProviderReference(ctx context.Context, id uuid.UUID, reference string) error
	// Settle moves a processing intent to a terminal status. It reports
	// false when the intent had already left processing.
	Settle(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	ListProcessing(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentIntent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.MasterOrder, error) {
	var order models.MasterOrder
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindProcessing(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusProcessing).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) CountFailed(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusFailed).
		Where("(failure_reason IS NULL OR failure_reason <> ?)", enums.FailureUserCancelled).
		Count(&n).Error
	return n, err
}

func (r *repository) SetProviderReference(ctx context.Context, id uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{"provider_reference": reference, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) Settle(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListProcessing returns processing intents oldest first. A zero
// createdBefore matches every intent.
func (r *repository) ListProcessing(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.PaymentStatusProcessing).
		Order("created_at ASC")
	if !createdBefore.IsZero() {
		query = query.Where("created_at < ?", createdBefore)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var intents []models.PaymentIntent
	if err := query.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}
