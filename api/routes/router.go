package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/farmlink-backend/api/controllers"
	disputecontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/disputes"
	ordercontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/payments"
	walletcontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/wallet"
	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/disputes"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface is wired to.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Gatherer    prometheus.Gatherer
	Readiness   map[string]controllers.Pinger
	Idempotency redis.IdempotencyStore
	Checkout    checkout.Service
	Orders      orders.Service
	Payments    payments.Service
	Disputes    disputes.Service
	Wallet      walletcontrollers.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	currency := cfg.Settlement.DefaultCurrency

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).
				Post("/split", ordercontrollers.Split(p.Checkout, currency, logg))
			r.Get("/{orderId}", ordercontrollers.Get(p.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).
				Post("/{orderId}/confirm-delivery", ordercontrollers.ConfirmDelivery(p.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleSeller)).
				Post("/{orderId}/cancel", ordercontrollers.Cancel(p.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleSeller, enums.ActorRoleLogistics)).
				Post("/{orderId}/sub-orders/{subOrderId}/progress", ordercontrollers.Progress(p.Orders, logg))
		})

		r.Route("/payments/intents", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
			r.Post("/", paymentcontrollers.CreateIntent(p.Payments, logg))
			r.Get("/{intentId}", paymentcontrollers.GetIntent(p.Payments, logg))
			r.Post("/{intentId}/cancel", paymentcontrollers.CancelIntent(p.Payments, logg))
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleDisputeService))
			r.Post("/opened", disputecontrollers.Opened(p.Disputes, logg))
			r.Post("/resolved", disputecontrollers.Resolved(p.Disputes, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", walletcontrollers.Balance(p.Wallet, currency, logg))
			r.Get("/transactions", walletcontrollers.Transactions(p.Wallet, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).
				Post("/top-ups", walletcontrollers.TopUp(p.Wallet, currency, logg))
		})
	})

	return r
}
