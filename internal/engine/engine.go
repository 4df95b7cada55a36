// Package engine assembles the ledger, orchestrator, wallet and their remote
// clients from configuration. Both binaries and the operator CLI build the
// same engine so that every entry point goes through the same contracts.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/data/mongo"
	"github.com/linebroker/internal/data/postgres"
	bannedDomain "github.com/linebroker/internal/domain/banned"
	ledgerDomain "github.com/linebroker/internal/domain/ledger"
	"github.com/linebroker/internal/domain/outbox"
	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/banned"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/orchestrator"
	"github.com/linebroker/internal/engine/pricing"
	"github.com/linebroker/internal/engine/wallet"
	"github.com/linebroker/internal/platform/gateway"
	"github.com/linebroker/internal/platform/persistence"
	"github.com/linebroker/internal/platform/provider"
	"github.com/linebroker/internal/platform/resilience"
)

// Stores are the repositories the engine runs on
type Stores struct {
	DB           persistence.TxRunner
	Ledger       ledgerDomain.Repository
	Transactions transaction.Repository
	Outbox       outbox.Repository
	Charges      payment.Repository
	Banned       bannedDomain.Repository
}

// Engine is the assembled set of services
type Engine struct {
	Ledger       ledger.Service
	Orchestrator orchestrator.Orchestrator
	Wallet       wallet.Service
	Pricing      pricing.Engine
	Banned       banned.Tracker
}

// OpenStores builds the Postgres repositories and the MongoDB banned-number
// collection, creating its indexes.
func OpenStores(ctx context.Context, logger *slog.Logger, pg *persistence.PostgresDB, mongoDB *persistence.MongoDB) (Stores, error) {
	bannedRepo := mongo.NewBannedRepository(logger, mongoDB.Database())
	if err := bannedRepo.EnsureIndexes(ctx); err != nil {
		return Stores{}, fmt.Errorf("failed to prepare banned numbers: %w", err)
	}

	return Stores{
		DB:           pg,
		Ledger:       postgres.NewLedgerRepository(logger, pg),
		Transactions: postgres.NewTransactionRepository(logger, pg),
		Outbox:       postgres.NewOutboxRepository(logger, pg),
		Charges:      postgres.NewChargeRepository(logger, pg),
		Banned:       bannedRepo,
	}, nil
}

// New wires the services. The provider and payment gateway clients each get
// their own breaker so an outage of one does not open the other.
func New(logger *slog.Logger, cfg *config.Config, stores Stores) *Engine {
	providerClient := provider.NewClient(logger, cfg.Provider,
		resilience.FromConfig(provider.Dependency, cfg.Resilience, logger))
	gatewayClient := gateway.NewClient(logger, cfg.Gateway,
		resilience.FromConfig(gateway.Dependency, cfg.Resilience, logger))

	return Assemble(logger, cfg, stores, providerClient, gatewayClient)
}

// Assemble wires the services around already built remote clients
func Assemble(logger *slog.Logger, cfg *config.Config, stores Stores, providerClient provider.Client, gatewayClient gateway.Client) *Engine {
	ledgerSvc := ledger.NewService(logger, stores.DB, stores.Ledger)
	pricingEngine := pricing.NewEngine()
	tracker := banned.NewTracker(logger, stores.Banned, cfg.Orchestrator.BanThreshold)

	orch := orchestrator.NewOrchestrator(logger, cfg.Orchestrator, orchestrator.Deps{
		DB:           stores.DB,
		Ledger:       ledgerSvc,
		Transactions: stores.Transactions,
		Outbox:       stores.Outbox,
		Provider:     providerClient,
		Pricing:      pricingEngine,
		Banned:       tracker,
	})

	walletSvc := wallet.NewService(logger, stores.DB, stores.Charges, ledgerSvc, gatewayClient, cfg.Gateway.Currency)

	return &Engine{
		Ledger:       ledgerSvc,
		Orchestrator: orch,
		Wallet:       walletSvc,
		Pricing:      pricingEngine,
		Banned:       tracker,
	}
}
