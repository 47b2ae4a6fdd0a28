// Package app assembles the settlement services shared by the api and
// cron-worker binaries.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/disputes"
	"github.com/angelmondragon/farmlink-backend/internal/ledger"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/internal/payments/providers"
	"github.com/angelmondragon/farmlink-backend/internal/poller"
	"github.com/angelmondragon/farmlink-backend/internal/sellers"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/instance"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/mobilemoney"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/square"
)

const trackingPrefix = "FL"

// Settlement is the wired service graph.
type Settlement struct {
	Ledger   ledger.Service
	Payments payments.Service
	Orders   orders.Service
	Disputes disputes.Service
	Checkout checkout.Service
	Poller   *poller.Manager
	Outbox   *outbox.Repository
}

type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Claims   poller.Claimer
	Registry prometheus.Registerer
}

// NewSettlement builds every settlement service on one database client.
// Gateways are registered only when configured; wallet and cash on delivery
// need none.
func NewSettlement(ctx context.Context, p Params) (*Settlement, error) {
	cfg, logg := p.Config, p.Logger
	conn := p.DB.DB()
	settlementMetrics := metrics.NewSettlementMetrics(p.Registry)
	outboxRepo := outbox.NewRepository(conn)
	publisher := outbox.NewService(outboxRepo, logg)

	registry, err := newProviderRegistry(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), p.DB, publisher, settlementMetrics, logg)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	ordersRepo := orders.NewRepository(conn)
	machine, err := orders.NewMachine(ordersRepo, publisher, logg)
	if err != nil {
		return nil, fmt.Errorf("order machine: %w", err)
	}

	paymentsRepo := payments.NewRepository(conn)
	resolver, err := payments.NewResolver(payments.ResolverParams{
		Repo:    paymentsRepo,
		Ledger:  ledgerSvc,
		Orders:  machine,
		Tx:      p.DB,
		Outbox:  publisher,
		Metrics: settlementMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payment resolver: %w", err)
	}

	manager, err := poller.NewManager(poller.Params{
		Config: poller.Config{
			PollInterval:      cfg.Settlement.PollInterval,
			FallbackCountdown: cfg.Settlement.FallbackCountdown,
			SyntheticDelayMin: cfg.Settlement.SyntheticDelayMin,
			SyntheticDelayMax: cfg.Settlement.SyntheticDelayMax,
			Owner:             instance.ID(),
		},
		Providers: registry,
		Resolver:  resolver,
		Claims:    p.Claims,
		Metrics:   settlementMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}

	paymentsSvc, err := payments.NewService(payments.Params{
		Config:    payments.Config{MaxRetries: cfg.Settlement.MaxRetries},
		Repo:      paymentsRepo,
		Ledger:    ledgerSvc,
		Providers: registry,
		Tracker:   manager,
		Resolver:  resolver,
		Tx:        p.DB,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	ordersSvc, err := orders.NewService(ordersRepo, machine, ledgerSvc, paymentsSvc, p.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	disputesSvc, err := disputes.NewService(ledgerSvc, machine, p.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("disputes service: %w", err)
	}

	ids, err := checkout.NewTrackingIDGenerator(trackingPrefix)
	if err != nil {
		return nil, err
	}
	splitter, err := checkout.NewSplitter(checkout.FlatFee(cfg.Settlement.DeliveryBaseFee, cfg.Settlement.DeliveryItemFee), ids)
	if err != nil {
		return nil, fmt.Errorf("splitter: %w", err)
	}
	checkoutSvc, err := checkout.NewService(splitter, sellers.NewRepository(conn), checkout.NewRepository(conn), p.DB, publisher, logg)
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	return &Settlement{
		Ledger:   ledgerSvc,
		Payments: paymentsSvc,
		Orders:   ordersSvc,
		Disputes: disputesSvc,
		Checkout: checkoutSvc,
		Poller:   manager,
		Outbox:   outboxRepo,
	}, nil
}

func newProviderRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*providers.Registry, error) {
	registry, err := providers.NewRegistry()
	if err != nil {
		return nil, err
	}

	if cfg.MobileMoney.Enabled() {
		client, err := mobilemoney.NewClient(cfg.MobileMoney, &http.Client{Timeout: cfg.MobileMoney.Timeout}, logg)
		if err != nil {
			return nil, fmt.Errorf("mobile money client: %w", err)
		}
		provider, err := providers.NewMobileMoney(client)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	} else {
		logg.Warn(ctx, "mobile money gateway not configured")
	}

	if cfg.Square.Enabled() {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		provider, err := providers.NewCard(client)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	} else {
		logg.Warn(ctx, "card gateway not configured")
	}
	return registry, nil
}
