// Package orchestrator drives verifications and rentals through their
// lifecycle. It is the only component that combines ledger mutations with
// calls to the verification provider, and it owns the rule that a debit
// followed by a downstream failure is refunded before the error is returned.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/outbox"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/banned"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/pricing"
	"github.com/linebroker/internal/platform/metrics"
	"github.com/linebroker/internal/platform/persistence"
	"github.com/linebroker/internal/platform/provider"
)

// Failure reasons stored on transactions
const (
	ReasonInsufficientFunds     = "insufficient_funds"
	ReasonDependencyUnavailable = "dependency_unavailable"
	ReasonTransientProvider     = "transient_provider_error"
	ReasonProvisioningError     = "provisioning_error"
	ReasonProvisioningTimeout   = "provisioning_timeout"
	ReasonCodeNotDelivered      = "code_not_delivered"
	ReasonCancelledByUser       = "cancelled_by_user"
)

// Orchestrator is the transaction lifecycle contract
type Orchestrator interface {
	Quote(ctx context.Context, cmd QuoteCommand) (*pricing.Quote, error)

	CreateVerification(ctx context.Context, cmd CreateVerification) (*transaction.Transaction, error)
	Status(ctx context.Context, userID string, id uuid.UUID) (*View, error)
	AwaitCode(ctx context.Context, userID string, id uuid.UUID, maxWait time.Duration) (*View, error)
	Cancel(ctx context.Context, userID string, id uuid.UUID) (*transaction.Transaction, error)
	Retry(ctx context.Context, cmd RetryCommand) (*transaction.Transaction, error)
	Expire(ctx context.Context, t *transaction.Transaction) (*transaction.RetryDecision, error)

	CreateRental(ctx context.Context, cmd CreateRental) (*transaction.Transaction, error)
	ExtendRental(ctx context.Context, cmd ExtendRental) (*transaction.Transaction, error)
	ReleaseRental(ctx context.Context, userID string, id uuid.UUID) (*Release, error)

	SweepDue(ctx context.Context, now time.Time, batch int) (*SweepReport, error)
}

// View is a transaction as shown to its owner. Decision is set once a
// verification has expired.
type View struct {
	Transaction *transaction.Transaction `json:"transaction"`
	Decision    *transaction.RetryDecision `json:"retry,omitempty"`
}

// Release is the outcome of releasing a rental early
type Release struct {
	Transaction *transaction.Transaction `json:"transaction"`
	Refunded    int64                    `json:"refunded"`
}

// Deps are the collaborators of the orchestrator
type Deps struct {
	DB           persistence.TxRunner
	Ledger       ledger.Service
	Transactions transaction.Repository
	Outbox       outbox.Repository
	Provider     provider.Client
	Pricing      pricing.Engine
	Banned       banned.Tracker
}

type orchestrator struct {
	db       persistence.TxRunner
	ledger   ledger.Service
	txs      transaction.Repository
	outbox   outbox.Repository
	provider provider.Client
	pricing  pricing.Engine
	banned   banned.Tracker

	cfg     config.OrchestratorConfig
	locks   *userLocks
	waiters *waiters
	now     func() time.Time
	logger  *slog.Logger
}

// NewOrchestrator creates the lifecycle engine
func NewOrchestrator(logger *slog.Logger, cfg config.OrchestratorConfig, deps Deps) Orchestrator {
	return &orchestrator{
		db:       deps.DB,
		ledger:   deps.Ledger,
		txs:      deps.Transactions,
		outbox:   deps.Outbox,
		provider: deps.Provider,
		pricing:  deps.Pricing,
		banned:   deps.Banned,
		cfg:      cfg,
		locks:    newUserLocks(),
		waiters:  newWaiters(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("component", "orchestrator"),
	}
}

// Quote prices a request the way CreateVerification or CreateRental would
func (o *orchestrator) Quote(ctx context.Context, cmd QuoteCommand) (*pricing.Quote, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	trailing, err := o.trailing(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	return o.pricing.Quote(pricing.QuoteRequest{
		ServiceID:             cmd.ServiceID,
		Capability:            cmd.Capability,
		Plan:                  cmd.Plan,
		RentalDays:            cmd.RentalDays,
		Addons:                cmd.Addons,
		TrailingVerifications: trailing,
	})
}

func (o *orchestrator) trailing(ctx context.Context, userID string) (int64, error) {
	count, err := o.txs.CountCompleted(ctx, userID, o.now().Add(-o.cfg.VolumeWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to count completed verifications: %w", err)
	}
	return count, nil
}

// load fetches a transaction owned by userID. Other users' transactions read as
// missing. An empty userID skips the ownership check.
func (o *orchestrator) load(ctx context.Context, userID string, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := o.txs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && t.UserID != userID {
		return nil, transaction.ErrTransactionNotFound{ID: id}
	}
	return t, nil
}

// commit applies change to a copy of t and persists it with a version check and
// a lifecycle event in one database transaction. t is only updated once the
// transaction has committed.
func (o *orchestrator) commit(ctx context.Context, t *transaction.Transaction, change func(tx pgx.Tx, next *transaction.Transaction) error) error {
	next := *t
	from := t.Status
	err := o.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := change(tx, &next); err != nil {
			return err
		}
		if err := o.txs.WithTx(tx).Update(ctx, &next); err != nil {
			return err
		}
		return o.emit(ctx, tx, &next, from)
	})
	if err != nil {
		return err
	}
	*t = next
	o.logger.Info("Transaction transitioned",
		"transaction_id", t.ID,
		"user_id", t.UserID,
		"kind", string(t.Kind),
		"from", string(from),
		"to", string(t.Status),
	)
	return nil
}

// emit queues the lifecycle event for t in the outbox
func (o *orchestrator) emit(ctx context.Context, tx pgx.Tx, t *transaction.Transaction, from transaction.Status) error {
	msg, err := outbox.NewMessage(transaction.NewEvent(t, from))
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	if err := o.outbox.WithTx(tx).Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	metrics.TransactionTransitionsTotal.WithLabelValues(string(t.Kind), string(t.Status)).Inc()
	return nil
}

// failAndRefund moves t to failed and refunds what was debited for it. It runs
// detached from the caller's context so a disconnecting client cannot leave a
// debit behind.
func (o *orchestrator) failAndRefund(ctx context.Context, t *transaction.Transaction, reason string) error {
	ctx = context.WithoutCancel(ctx)
	err := o.commit(ctx, t, func(tx pgx.Tx, next *transaction.Transaction) error {
		if err := next.Fail(reason, o.now()); err != nil {
			return err
		}
		if next.CostCharged > 0 {
			if _, err := o.ledger.RefundTx(ctx, tx, next.UserID, next.CostCharged, next.ID.String()); err != nil {
				return fmt.Errorf("failed to refund transaction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		// the row stays in provisioning and the sweeper retries the refund
		o.logger.Error("Failed to refund failed transaction",
			"transaction_id", t.ID,
			"user_id", t.UserID,
			"amount", t.CostCharged,
			"error", err,
		)
		return err
	}
	return nil
}

// releaseLine cancels a provider line without failing the caller
func (o *orchestrator) releaseLine(ctx context.Context, id uuid.UUID, lineRef string) {
	if lineRef == "" {
		return
	}
	if err := o.provider.Cancel(context.WithoutCancel(ctx), lineRef); err != nil {
		o.logger.Warn("Failed to cancel provider line",
			"transaction_id", id,
			"line_ref", lineRef,
			"error", err,
		)
	}
}

func (o *orchestrator) expiry(serviceID string) time.Duration {
	if d, ok := o.cfg.ServiceExpiry[serviceID]; ok && d > 0 {
		return d
	}
	return o.cfg.DefaultExpiry
}

// failureReason maps a provisioning error to the reason stored on the row
func failureReason(err error) string {
	var rejected *shared.RemoteRejectedError
	switch {
	case errors.As(err, &rejected):
		return rejected.Reason
	case errors.Is(err, shared.ErrDependencyUnavailable):
		return ReasonDependencyUnavailable
	case errors.Is(err, shared.ErrTransientProvider):
		return ReasonTransientProvider
	default:
		return ReasonProvisioningError
	}
}
