package wallet

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/api/controllers/dto"
	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/api/responses"
	"github.com/angelmondragon/farmlink-backend/api/validators"
	"github.com/angelmondragon/farmlink-backend/internal/ledger"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

// Service is the slice of the ledger the wallet endpoints read and write.
type Service interface {
	Balance(ctx context.Context, accountID uuid.UUID, currency string) (money.Money, error)
	Transactions(ctx context.Context, accountID uuid.UUID, page pagination.Params) (*ledger.TransactionPage, error)
	TopUp(ctx context.Context, input ledger.EntryInput) (*models.TransactionRecord, error)
}

type topUpRequest struct {
	Amount    string `json:"amount" validate:"required,amount"`
	Currency  string `json:"currency,omitempty" validate:"omitempty,currency"`
	Reference string `json:"reference,omitempty" validate:"max=100"`
}

type transactionsResponse struct {
	Transactions []dto.Transaction `json:"transactions"`
	NextCursor   string            `json:"next_cursor,omitempty"`
}

type balanceResponse struct {
	AccountID uuid.UUID  `json:"account_id"`
	Balance   dto.Amount `json:"balance"`
}

// Balance folds the caller's transaction log. Sellers see the account their
// escrow releases land in.
func Balance(svc Service, defaultCurrency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := walletAccount(w, r, svc, logg)
		if !ok {
			return
		}
		currency, err := validators.ParseQueryCurrency(r, "currency", defaultCurrency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), accountID, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{
			AccountID: accountID,
			Balance:   dto.NewAmount(balance.Amount, balance.Currency),
		})
	}
}

func Transactions(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := walletAccount(w, r, svc, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		after, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		page, err := svc.Transactions(r.Context(), accountID, pagination.Params{Limit: limit, After: after})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := transactionsResponse{
			Transactions: make([]dto.Transaction, 0, len(page.Records)),
			NextCursor:   page.NextCursor,
		}
		for _, rec := range page.Records {
			out.Transactions = append(out.Transactions, dto.NewTransaction(rec))
		}
		responses.WriteSuccess(w, out)
	}
}

// TopUp credits the buyer's wallet. The Idempotency-Key doubles as the
// ledger reference when the body carries none.
func TopUp(svc Service, defaultCurrency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := walletAccount(w, r, svc, logg)
		if !ok {
			return
		}
		var payload topUpRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency := payload.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		amount, err := money.ParseDecimal(payload.Amount, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		reference := validators.SanitizeString(payload.Reference, 100)
		if reference == "" {
			reference = validators.SanitizeString(r.Header.Get(middleware.IdempotencyHeader), 100)
		}
		if reference == "" {
			reference = uuid.NewString()
		}

		record, err := svc.TopUp(r.Context(), ledger.EntryInput{
			AccountID: accountID,
			Amount:    amount,
			Reference: "topup:" + reference,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewTransaction(*record))
	}
}

func walletAccount(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
		return uuid.Nil, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return uuid.Nil, false
	}
	return accountFor(actor), true
}

func accountFor(actor types.Actor) uuid.UUID {
	if actor.SellerID != nil {
		return *actor.SellerID
	}
	return actor.UserID
}
