package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the only writer of reserve entries and transaction records.
// Every method taking a tx joins it when non-nil and opens its own
// transaction otherwise.
type Service interface {
	Hold(ctx context.Context, tx *gorm.DB, input HoldInput) (*models.ReserveEntry, error)
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.TransactionRecord, error)
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.TransactionRecord, error)
	Freeze(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.ReserveEntry, error)
	Unfreeze(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.ReserveEntry, error)
	Status(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.ReserveStatus, error)

	Credit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.TransactionRecord, error)
	Debit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.TransactionRecord, error)
	TopUp(ctx context.Context, input EntryInput) (*models.TransactionRecord, error)
	Balance(ctx context.Context, accountID uuid.UUID, currency string) (money.Money, error)
	Transactions(ctx context.Context, accountID uuid.UUID, page pagination.Params) (*TransactionPage, error)
}

// TransactionPage is one page of wallet history, newest first.
type TransactionPage struct {
	Records    []models.TransactionRecord
	NextCursor string
}

// HoldInput places a paid order's funds in escrow.
type HoldInput struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	IntentID *uuid.UUID
	Amount   money.Money
}

// EntryInput is a single wallet movement. Reference is unique per account
// and type, which makes replays detectable.
type EntryInput struct {
	AccountID uuid.UUID
	OrderID   *uuid.UUID
	Amount    money.Money
	Reference string
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the ledger. settlementMetrics may be nil.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, settlementMetrics *metrics.SettlementMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  publisher,
		metrics: settlementMetrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func (s *service) Hold(ctx context.Context, tx *gorm.DB, input HoldInput) (*models.ReserveEntry, error) {
	if input.OrderID == uuid.Nil || input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and buyer are required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold amount must be positive")
	}

	var entry *models.ReserveEntry
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.CurrentReserve(ctx, input.OrderID, true)
		switch {
		case err == nil && current.Status.IsActive():
			return duplicateHold()
		case err != nil && !db.IsNotFound(err):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reserve")
		}

		entry = &models.ReserveEntry{
			OrderID:  input.OrderID,
			BuyerID:  input.BuyerID,
			IntentID: input.IntentID,
			Amount:   input.Amount.Amount,
			Currency: input.Amount.Currency,
			Status:   enums.ReserveStatusHeld,
		}
		if err := repo.CreateReserve(ctx, entry); err != nil {
			if db.IsUniqueViolation(err, "") {
				return duplicateHold()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reserve")
		}
		orderID := input.OrderID
		if err := repo.CreateRecord(ctx, &models.TransactionRecord{
			AccountID: input.BuyerID,
			OrderID:   &orderID,
			Type:      enums.TransactionReserveHold,
			Amount:    entry.Amount,
			Currency:  entry.Currency,
			Reference: "hold:" + entry.ID.String(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record hold")
		}
		return s.emitReserve(ctx, tx, enums.EventReserveHeld, entry, "", nil)
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, entry, "held")
	return entry, nil
}

// Release pays the held amount out to sellers pro rata. The master order
// must already be delivered.
func (s *service) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.TransactionRecord, error) {
	var (
		entry   *models.ReserveEntry
		records []models.TransactionRecord
	)
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		entry, err = s.lockForSettlement(ctx, repo, orderID, "released")
		if err != nil {
			return err
		}
		status, err := repo.OrderStatus(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order status")
		}
		if status != enums.OrderStatusDelivered {
			return undelivered(status)
		}

		payees, err := repo.ListPayees(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payees")
		}
		weights := make([]int64, len(payees))
		for i, p := range payees {
			weights[i] = p.Weight
		}
		shares, err := money.Allocate(entry.Amount, weights)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate release")
		}

		now := s.now().UTC()
		if err := s.transition(ctx, repo, entry, enums.ReserveStatusHeld, enums.ReserveStatusReleased, "released", map[string]any{
			"released_at": now,
			"reason":      reason,
		}); err != nil {
			return err
		}

		payouts := make([]payloads.Payout, 0, len(payees))
		for i, p := range payees {
			if shares[i] == 0 {
				continue
			}
			record := models.TransactionRecord{
				AccountID: p.SellerID,
				OrderID:   &orderID,
				Type:      enums.TransactionReserveRelease,
				Amount:    shares[i],
				Currency:  entry.Currency,
				Reference: fmt.Sprintf("release:%s:%s", orderID, p.SubOrderID),
			}
			if err := repo.CreateRecord(ctx, &record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record release")
			}
			records = append(records, record)
			payouts = append(payouts, payloads.Payout{SellerID: p.SellerID, Amount: shares[i]})
		}
		entry.Status = enums.ReserveStatusReleased
		entry.ReleasedAt = &now
		return s.emitReserve(ctx, tx, enums.EventReserveReleased, entry, reason, payouts)
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, entry, "released")
	return records, nil
}

func (s *service) Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.TransactionRecord, error) {
	var (
		entry  *models.ReserveEntry
		record *models.TransactionRecord
	)
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		entry, err = s.lockForSettlement(ctx, repo, orderID, "refunded")
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := s.transition(ctx, repo, entry, enums.ReserveStatusHeld, enums.ReserveStatusRefunded, "refunded", map[string]any{
			"refunded_at": now,
			"reason":      reason,
		}); err != nil {
			return err
		}
		record = &models.TransactionRecord{
			AccountID: entry.BuyerID,
			OrderID:   &orderID,
			Type:      enums.TransactionCredit,
			Amount:    entry.Amount,
			Currency:  entry.Currency,
			Reference: "refund:" + orderID.String(),
		}
		if err := repo.CreateRecord(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}
		entry.Status = enums.ReserveStatusRefunded
		entry.RefundedAt = &now
		return s.emitReserve(ctx, tx, enums.EventReserveRefunded, entry, reason, nil)
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, entry, "refunded")
	return record, nil
}

// Freeze blocks settlement while a dispute is open. Freezing a frozen
// reserve is a no-op.
func (s *service) Freeze(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*models.ReserveEntry, error) {
	var (
		entry   *models.ReserveEntry
		changed bool
	)
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		entry, err = s.lockCurrent(ctx, repo, orderID, "frozen")
		if err != nil {
			return err
		}
		switch entry.Status {
		case enums.ReserveStatusFrozen:
			return nil
		case enums.ReserveStatusHeld:
		default:
			return invalidState(entry.Status, "frozen")
		}

		now := s.now().UTC()
		if err := s.transition(ctx, repo, entry, enums.ReserveStatusHeld, enums.ReserveStatusFrozen, "frozen", map[string]any{
			"frozen_at": now,
			"reason":    reason,
		}); err != nil {
			return err
		}
		entry.Status = enums.ReserveStatusFrozen
		entry.FrozenAt = &now
		changed = true
		return s.emitReserve(ctx, tx, enums.EventReserveFrozen, entry, reason, nil)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.observe(ctx, entry, "frozen")
	}
	return entry, nil
}

// Unfreeze returns a frozen reserve to held. A held reserve is left as is.
func (s *service) Unfreeze(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.ReserveEntry, error) {
	var (
		entry   *models.ReserveEntry
		changed bool
	)
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		entry, err = s.lockCurrent(ctx, repo, orderID, "unfrozen")
		if err != nil {
			return err
		}
		switch entry.Status {
		case enums.ReserveStatusHeld:
			return nil
		case enums.ReserveStatusFrozen:
		default:
			return invalidState(entry.Status, "unfrozen")
		}

		if err := s.transition(ctx, repo, entry, enums.ReserveStatusFrozen, enums.ReserveStatusHeld, "unfrozen", map[string]any{
			"frozen_at": nil,
		}); err != nil {
			return err
		}
		entry.Status = enums.ReserveStatusHeld
		entry.FrozenAt = nil
		changed = true
		return s.emitReserve(ctx, tx, enums.EventReserveUnfrozen, entry, "", nil)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.observe(ctx, entry, "unfrozen")
	}
	return entry, nil
}

// Status reports the escrow state of an order; none when nothing was held.
func (s *service) Status(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.ReserveStatus, error) {
	repo := s.repo.WithTx(tx)
	entry, err := repo.CurrentReserve(ctx, orderID, false)
	if err != nil {
		if db.IsNotFound(err) {
			return enums.ReserveStatusNone, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reserve")
	}
	return entry.Status, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.TransactionRecord, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	var record *models.TransactionRecord
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		var err error
		record, err = s.append(ctx, s.repo.WithTx(tx), enums.TransactionCredit, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Debit takes money out of a wallet. The account row is locked and the
// balance re-folded before the record is written.
func (s *service) Debit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.TransactionRecord, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	var record *models.TransactionRecord
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockAccount(ctx, input.AccountID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}
		records, err := repo.ListRecords(ctx, input.AccountID, 0)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		balance := Fold(input.Amount.Currency, records)
		if balance.Amount < input.Amount.Amount {
			return pkgerrors.Wrap(pkgerrors.CodeInsufficientBalance, ErrInsufficientBalance, "wallet balance too low").
				WithDetails(map[string]any{
					"balance":  balance.Amount,
					"required": input.Amount.Amount,
					"currency": balance.Currency,
				})
		}
		record, err = s.append(ctx, repo, enums.TransactionDebit, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) TopUp(ctx context.Context, input EntryInput) (*models.TransactionRecord, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	var record *models.TransactionRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		record, err = s.append(ctx, s.repo.WithTx(tx), enums.TransactionCredit, input)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletCredited,
			AggregateType: enums.AggregateWallet,
			AggregateID:   input.AccountID,
			Actor:         &outbox.ActorRef{UserID: input.AccountID, Role: enums.ActorRoleBuyer.String()},
			Data: payloads.WalletCreditedEvent{
				AccountID: input.AccountID,
				Amount:    record.Amount,
				Currency:  record.Currency,
				Reference: record.Reference,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"account_id": input.AccountID.String(),
		"amount":     record.Amount,
		"currency":   record.Currency,
	})
	s.logg.Info(logCtx, "wallet topped up")
	return record, nil
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID, currency string) (money.Money, error) {
	records, err := s.repo.ListRecords(ctx, accountID, 0)
	if err != nil {
		return money.Money{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return Fold(currency, records), nil
}

func (s *service) Transactions(ctx context.Context, accountID uuid.UUID, page pagination.Params) (*TransactionPage, error) {
	records, err := s.repo.PageRecords(ctx, accountID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transactions")
	}
	records, next := pagination.Trim(page, records, func(r models.TransactionRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &TransactionPage{Records: records, NextCursor: next}, nil
}

// Fold computes a wallet balance in currency from its records.
func Fold(currency string, records []models.TransactionRecord) money.Money {
	balance := money.Zero(currency)
	for _, r := range records {
		if money.NormalizeCurrency(r.Currency) != balance.Currency {
			continue
		}
		balance.Amount += r.Type.BalanceSign() * r.Amount
	}
	return balance
}

func validateEntry(input EntryInput) error {
	if input.AccountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !money.ValidCurrency(input.Amount.Currency) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	if input.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	return nil
}

func (s *service) append(ctx context.Context, repo Repository, txType enums.TransactionType, input EntryInput) (*models.TransactionRecord, error) {
	if _, err := repo.FindRecord(ctx, input.AccountID, txType, input.Reference); err == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrDuplicateReference, "transaction already recorded").
			WithDetails(map[string]any{"reference": input.Reference})
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reference")
	}
	record := &models.TransactionRecord{
		AccountID: input.AccountID,
		OrderID:   input.OrderID,
		Type:      txType,
		Amount:    input.Amount.Amount,
		Currency:  money.NormalizeCurrency(input.Amount.Currency),
		Reference: input.Reference,
	}
	if err := repo.CreateRecord(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transaction")
	}
	return record, nil
}

func (s *service) lockCurrent(ctx context.Context, repo Repository, orderID uuid.UUID, op string) (*models.ReserveEntry, error) {
	entry, err := repo.CurrentReserve(ctx, orderID, true)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, invalidState(enums.ReserveStatusNone, op)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reserve")
	}
	return entry, nil
}

func (s *service) lockForSettlement(ctx context.Context, repo Repository, orderID uuid.UUID, op string) (*models.ReserveEntry, error) {
	entry, err := s.lockCurrent(ctx, repo, orderID, op)
	if err != nil {
		return nil, err
	}
	if err := settleable(entry.Status, op); err != nil {
		return nil, err
	}
	return entry, nil
}

// transition applies the conditional update; a lost race reports the
// status the winner left behind.
func (s *service) transition(ctx context.Context, repo Repository, entry *models.ReserveEntry, from, to enums.ReserveStatus, op string, fields map[string]any) error {
	ok, err := repo.TransitionReserve(ctx, entry.ID, from, to, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reserve")
	}
	if ok {
		return nil
	}
	current, err := repo.CurrentReserve(ctx, entry.OrderID, false)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload reserve")
	}
	if from == enums.ReserveStatusHeld {
		if err := settleable(current.Status, op); err != nil {
			return err
		}
	}
	return invalidState(current.Status, op)
}

func (s *service) emitReserve(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, entry *models.ReserveEntry, reason string, payouts []payloads.Payout) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReserve,
		AggregateID:   entry.ID,
		Data: payloads.ReserveEvent{
			ReserveID: entry.ID,
			OrderID:   entry.OrderID,
			Status:    entry.Status,
			Amount:    entry.Amount,
			Currency:  entry.Currency,
			Reason:    reason,
			Payouts:   payouts,
		},
	})
}

func (s *service) observe(ctx context.Context, entry *models.ReserveEntry, transition string) {
	s.metrics.ReserveTransition(transition)
	logCtx := s.logg.WithOrderID(ctx, entry.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"reserve_id": entry.ID.String(),
		"amount":     entry.Amount,
		"currency":   entry.Currency,
	})
	s.logg.Info(logCtx, "reserve "+transition)
}
