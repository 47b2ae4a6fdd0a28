package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
)

// Payee is one seller share of a release, weighted by its sub-order total.
type Payee struct {
	SubOrderID uuid.UUID
	SellerID   uuid.UUID
	Weight     int64
}

// Repository persists reserve entries and transaction records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateReserve(ctx context.Context, entry *models.ReserveEntry) error
	CurrentReserve(ctx context.Context, orderID uuid.UUID, lock bool) (*models.ReserveEntry, error)
	TransitionReserve(ctx context.Context, id uuid.UUID, from, to enums.ReserveStatus, fields map[string]any) (bool, error)
	CreateRecord(ctx context.Context, record *models.TransactionRecord) error
	FindRecord(ctx context.Context, accountID uuid.UUID, txType enums.TransactionType, reference string) (*models.TransactionRecord, error)
	ListRecords(ctx context.Context, accountID uuid.UUID, limit int) ([]models.TransactionRecord, error)
	PageRecords(ctx context.Context, accountID uuid.UUID, page pagination.Params) ([]models.TransactionRecord, error)
	ListPayees(ctx context.Context, orderID uuid.UUID) ([]Payee, error)
	OrderStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error)
	LockAccount(ctx context.Context, accountID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateReserve(ctx context.Context, entry *models.ReserveEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// CurrentReserve returns the active entry for an order, or the most recent
// settled one when nothing is active. lock takes a row lock.
func (r *repository) CurrentReserve(ctx context.Context, orderID uuid.UUID, lock bool) (*models.ReserveEntry, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var entry models.ReserveEntry
	err := q.Where("order_id = ?", orderID).
		Order("CASE WHEN status IN ('held', 'frozen') THEN 0 ELSE 1 END").
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// TransitionReserve moves an entry between statuses only if it is still in
// from. It reports whether this call won the transition.
func (r *repository) TransitionReserve(ctx context.Context, id uuid.UUID, from, to enums.ReserveStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.ReserveEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateRecord(ctx context.Context, record *models.TransactionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindRecord(ctx context.Context, accountID uuid.UUID, txType enums.TransactionType, reference string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND type = ? AND reference = ?", accountID, txType, reference).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecords returns an account's records newest first. limit <= 0 returns
// all of them.
func (r *repository) ListRecords(ctx context.Context, accountID uuid.UUID, limit int) ([]models.TransactionRecord, error) {
	q := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []models.TransactionRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// PageRecords loads page.Fetch() records older than page.After, keyed on
// (created_at, id) descending.
func (r *repository) PageRecords(ctx context.Context, accountID uuid.UUID, page pagination.Params) ([]models.TransactionRecord, error) {
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if c := page.After; c != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}
	var records []models.TransactionRecord
	err := q.Order("created_at DESC").Order("id DESC").Limit(page.Fetch()).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) ListPayees(ctx context.Context, orderID uuid.UUID) ([]Payee, error) {
	var subs []models.SubOrder
	err := r.db.WithContext(ctx).
		Select("id", "seller_id", "total_amount").
		Where("master_order_id = ? AND status <> ?", orderID, enums.OrderStatusCancelled).
		Order("position ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	payees := make([]Payee, 0, len(subs))
	for _, sub := range subs {
		payees = append(payees, Payee{SubOrderID: sub.ID, SellerID: sub.SellerID, Weight: sub.TotalAmount})
	}
	return payees, nil
}

// OrderStatus reads the master order's stored status.
func (r *repository) OrderStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	var order models.MasterOrder
	err := r.db.WithContext(ctx).
		Select("id", "status").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

// LockAccount serializes wallet writers on one account row.
func (r *repository) LockAccount(ctx context.Context, accountID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.LedgerAccount{ID: accountID}).Error; err != nil {
		return err
	}
	var account models.LedgerAccount
	return db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", accountID).
		First(&account).Error
}
