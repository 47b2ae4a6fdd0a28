package payments

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/api/controllers/dto"
	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/api/responses"
	"github.com/angelmondragon/farmlink-backend/api/validators"
	internalpayments "github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

type createIntentRequest struct {
	OrderID  uuid.UUID           `json:"order_id" validate:"required"`
	Method   enums.PaymentMethod `json:"method" validate:"required,oneof=wallet mobile_money card cash_on_delivery"`
	Amount   string              `json:"amount" validate:"required,amount"`
	Currency string              `json:"currency" validate:"required,currency"`
	Phone    string              `json:"phone,omitempty" validate:"max=20"`
	SourceID string              `json:"source_id,omitempty" validate:"max=255"`
}

// CreateIntent starts a payment attempt. Provider methods answer while the
// intent is still processing; clients poll GetIntent.
func CreateIntent(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := paymentsActor(w, r, svc, logg)
		if !ok {
			return
		}
		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := money.ParseDecimal(payload.Amount, payload.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		intent, err := svc.CreateIntent(r.Context(), internalpayments.CreateIntentInput{
			OrderID:        payload.OrderID,
			Actor:          actor,
			Amount:         amount,
			Method:         payload.Method,
			Phone:          strings.TrimSpace(payload.Phone),
			SourceID:       strings.TrimSpace(payload.SourceID),
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if intent.Status == enums.PaymentStatusProcessing {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, dto.NewIntent(intent))
	}
}

// GetIntent reports the stored intent and, while processing, what the
// provider currently says. It never resolves the intent.
func GetIntent(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, intentID, ok := intentRequest(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.PollStatus(r.Context(), intentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := dto.NewIntent(view.Intent)
		out.ProviderStatus = string(view.ProviderStatus)
		responses.WriteSuccess(w, out)
	}
}

func CancelIntent(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, intentID, ok := intentRequest(w, r, svc, logg)
		if !ok {
			return
		}
		intent, err := svc.Cancel(r.Context(), intentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewIntent(intent))
	}
}

func intentRequest(w http.ResponseWriter, r *http.Request, svc internalpayments.Service, logg *logger.Logger) (types.Actor, uuid.UUID, bool) {
	actor, ok := paymentsActor(w, r, svc, logg)
	if !ok {
		return types.Actor{}, uuid.Nil, false
	}
	intentID, err := validators.ParseUUIDParam(r, "intentId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return types.Actor{}, uuid.Nil, false
	}
	return actor, intentID, true
}

func paymentsActor(w http.ResponseWriter, r *http.Request, svc internalpayments.Service, logg *logger.Logger) (types.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
		return types.Actor{}, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return types.Actor{}, false
	}
	return actor, true
}
