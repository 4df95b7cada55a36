package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/orchestrator"
	"github.com/linebroker/internal/engine/pricing"
)

// TransactionService defines the interface for verification and rental operations
type TransactionService interface {
	// CreateVerification debits the quote and provisions a line
	CreateVerification(ctx context.Context, cmd orchestrator.CreateVerification) (*transaction.Transaction, error)

	// GetStatus returns the caller's transaction. A positive wait long-polls
	// for the code, bounded by the server's maximum.
	GetStatus(ctx context.Context, userID string, id uuid.UUID, wait time.Duration) (*orchestrator.View, error)

	Cancel(ctx context.Context, userID string, id uuid.UUID) (*transaction.Transaction, error)
	Retry(ctx context.Context, cmd orchestrator.RetryCommand) (*transaction.Transaction, error)
	Quote(ctx context.Context, cmd orchestrator.QuoteCommand) (*pricing.Quote, error)

	CreateRental(ctx context.Context, cmd orchestrator.CreateRental) (*transaction.Transaction, error)
	ExtendRental(ctx context.Context, cmd orchestrator.ExtendRental) (*transaction.Transaction, error)
	ReleaseRental(ctx context.Context, userID string, id uuid.UUID) (*orchestrator.Release, error)
}

// WalletService defines the interface for balance and top-up operations
type WalletService interface {
	GetBalance(ctx context.Context, userID string) (int64, error)

	// GetEntries returns a page of the user's ledger entries, newest first
	GetEntries(ctx context.Context, userID string, page, perPage int) (*ledger.HistoryPage, error)

	InitTopUp(ctx context.Context, userID string, amount int64) (*payment.Charge, error)
	GetTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error)
	VerifyTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error)

	// AcceptWebhook verifies a gateway notification and publishes it for
	// settlement. It returns once the event is durably queued.
	AcceptWebhook(ctx context.Context, payload []byte, token, correlationID string) (*payment.SettlementEvent, error)
}
