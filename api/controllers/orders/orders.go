package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/api/controllers/dto"
	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/api/responses"
	"github.com/angelmondragon/farmlink-backend/api/validators"
	"github.com/angelmondragon/farmlink-backend/internal/checkout"
	internalorders "github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

const maxReasonLen = 500

type splitRequest struct {
	Currency        string                 `json:"currency,omitempty" validate:"omitempty,currency"`
	Items           []cartItemRequest      `json:"items" validate:"required,min=1,max=100,dive"`
	DeliveryAddress *types.DeliveryAddress `json:"delivery_address,omitempty"`
}

type cartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	SellerID  uuid.UUID `json:"seller_id" validate:"required"`
	Name      string    `json:"name" validate:"required,max=200"`
	UnitPrice string    `json:"unit_price" validate:"required,amount"`
	Quantity  int64     `json:"quantity" validate:"gt=0,max=100000"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type progressRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required,oneof=packed shipped delivered"`
}

type orderDetailResponse struct {
	dto.Order
	ReserveStatus enums.ReserveStatus `json:"reserve_status"`
	LatestIntent  *dto.Intent         `json:"latest_intent,omitempty"`
}

type deliveryResponse struct {
	Order    dto.Order    `json:"order"`
	Released bool         `json:"released"`
	Amount   dto.Amount   `json:"amount"`
	Payouts  []dto.Payout `json:"payouts"`
}

// newDeliveryResponse reports the released amount as the sum of the seller
// payouts, zero when nothing was held.
func newDeliveryResponse(result *internalorders.DeliveryResult) deliveryResponse {
	var released int64
	for _, p := range result.Payouts {
		released += p.Amount
	}
	currency := ""
	if result.Order != nil {
		currency = result.Order.Currency
	}
	return deliveryResponse{
		Order:    dto.NewOrder(result.Order),
		Released: result.Released,
		Amount:   dto.NewAmount(released, currency),
		Payouts:  dto.NewPayouts(result.Payouts),
	}
}

// Split turns the buyer's cart into a pending master order with one
// sub-order per seller.
func Split(svc checkout.Service, defaultCurrency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload splitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency := money.NormalizeCurrency(payload.Currency)
		if currency == "" {
			currency = money.NormalizeCurrency(defaultCurrency)
		}

		lines := make([]checkout.CartLine, 0, len(payload.Items))
		for i, item := range payload.Items {
			price, err := money.ParseDecimal(item.UnitPrice, currency)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit price").
					WithDetails(map[string]any{"index": i}))
				return
			}
			lines = append(lines, checkout.CartLine{
				ProductID: item.ProductID,
				SellerID:  item.SellerID,
				Name:      validators.SanitizeString(item.Name, 200),
				UnitPrice: price,
				Quantity:  item.Quantity,
			})
		}

		order, err := svc.Checkout(r.Context(), checkout.CheckoutInput{
			BuyerID:         actor.UserID,
			Lines:           lines,
			DeliveryAddress: payload.DeliveryAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewOrder(order))
	}
}

// Get returns the order with its escrow state and latest payment attempt.
func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		detail, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderDetailResponse{
			Order:         dto.NewOrder(detail.Order),
			ReserveStatus: detail.ReserveStatus,
			LatestIntent:  dto.NewIntent(detail.LatestIntent),
		})
	}
}

// ConfirmDelivery is the buyer's receipt. It releases escrow once.
func ConfirmDelivery(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		result, err := svc.ConfirmDelivery(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryResponse(result))
	}
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		order, err := svc.Cancel(r.Context(), orderID, actor, validators.SanitizeString(payload.Reason, maxReasonLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

// Progress records a seller or logistics status report for one sub-order.
func Progress(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		subOrderID, err := validators.ParseUUIDParam(r, "subOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload progressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ReportProgress(r.Context(), internalorders.ProgressInput{
			OrderID:    orderID,
			SubOrderID: subOrderID,
			Status:     payload.Status,
			Actor:      actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func orderRequest(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (types.Actor, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return types.Actor{}, uuid.Nil, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return types.Actor{}, uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return types.Actor{}, uuid.Nil, false
	}
	return actor, orderID, true
}
