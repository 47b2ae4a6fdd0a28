package disputes

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/api/controllers/dto"
	"github.com/angelmondragon/farmlink-backend/api/responses"
	"github.com/angelmondragon/farmlink-backend/api/validators"
	internaldisputes "github.com/angelmondragon/farmlink-backend/internal/disputes"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type openedRequest struct {
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	DisputeID string    `json:"dispute_id" validate:"required,max=100"`
	Reason    string    `json:"reason,omitempty" validate:"max=500"`
}

type resolvedRequest struct {
	OrderID   uuid.UUID            `json:"order_id" validate:"required"`
	DisputeID string               `json:"dispute_id" validate:"required,max=100"`
	Outcome   enums.DisputeOutcome `json:"outcome" validate:"required,oneof=favor_buyer favor_seller"`
}

type openedResponse struct {
	Frozen  bool         `json:"frozen"`
	Reserve *dto.Reserve `json:"reserve"`
}

type resolvedResponse struct {
	Settled  internaldisputes.Settlement `json:"settled"`
	Replayed bool                        `json:"replayed,omitempty"`
	Order    dto.Order                   `json:"order"`
}

// Opened is called by the dispute service when a case is opened.
func Opened(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispute service unavailable"))
			return
		}
		var payload openedRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Opened(r.Context(), internaldisputes.OpenedInput{
			OrderID:   payload.OrderID,
			DisputeID: validators.SanitizeString(payload.DisputeID, 100),
			Reason:    validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, openedResponse{
			Frozen:  entry.Status == enums.ReserveStatusFrozen,
			Reserve: dto.NewReserve(entry),
		})
	}
}

// Resolved settles a closed case: refund the buyer or pay the sellers.
func Resolved(svc internaldisputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispute service unavailable"))
			return
		}
		var payload resolvedRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Resolved(r.Context(), internaldisputes.ResolvedInput{
			OrderID:   payload.OrderID,
			DisputeID: validators.SanitizeString(payload.DisputeID, 100),
			Outcome:   payload.Outcome,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resolvedResponse{
			Settled:  res.Settled,
			Replayed: res.Replayed,
			Order:    dto.NewOrder(res.Order),
		})
	}
}
