package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/pricing"
	"github.com/linebroker/internal/platform/provider"
)

// provisionRequest is what CreateVerification, CreateRental and Retry share
type provisionRequest struct {
	kind        transaction.Kind
	userID      string
	serviceID   string
	capability  shared.Capability
	plan        shared.Plan
	areaCode    string
	carrier     string
	addons      []string
	phoneNumber string
	rentalDays  int
	// retryOf is refunded in the same database transaction as the new debit
	retryOf *transaction.Transaction
}

// provision quotes, debits, acquires a line and activates the transaction. The
// caller holds the user lock. Every error returned after the debit committed
// has been preceded by a refund.
func (o *orchestrator) provision(ctx context.Context, req provisionRequest) (*transaction.Transaction, error) {
	trailing, err := o.trailing(ctx, req.userID)
	if err != nil {
		return nil, err
	}
	quote, err := o.pricing.Quote(pricing.QuoteRequest{
		ServiceID:             req.serviceID,
		Capability:            req.capability,
		Plan:                  req.plan,
		RentalDays:            req.rentalDays,
		Addons:                req.addons,
		TrailingVerifications: trailing,
	})
	if err != nil {
		return nil, err
	}

	now := o.now()
	t := transaction.New(req.kind, req.userID, quote.ServiceID, req.capability, quote.Plan, now)
	t.AreaCode = req.areaCode
	t.Carrier = req.carrier
	t.Addons = req.addons
	t.CostCharged = quote.Total
	t.RentalDays = req.rentalDays
	if req.retryOf != nil {
		id := req.retryOf.ID
		t.RetryOf = &id
	}

	if err := o.debitAndInsert(ctx, t, req.retryOf); err != nil {
		if errors.Is(err, shared.ErrInsufficientFunds) {
			o.recordRejected(ctx, t, ReasonInsufficientFunds)
		}
		return nil, err
	}

	line, err := o.acquire(ctx, t, req.phoneNumber)
	if err != nil {
		o.logger.Warn("Line acquisition failed, refunding",
			"transaction_id", t.ID,
			"user_id", t.UserID,
			"service_id", t.ServiceID,
			"error", err,
		)
		if refundErr := o.failAndRefund(ctx, t, failureReason(err)); refundErr != nil {
			return nil, errors.Join(err, refundErr)
		}
		return nil, err
	}

	if err := o.activate(ctx, t, line); err != nil {
		o.logger.Error("Failed to record acquired line, refunding",
			"transaction_id", t.ID,
			"line_ref", line.Reference,
			"error", err,
		)
		o.releaseLine(ctx, t.ID, line.Reference)
		if refundErr := o.failAndRefund(ctx, t, ReasonProvisioningError); refundErr != nil {
			return nil, errors.Join(err, refundErr)
		}
		return nil, err
	}
	return t, nil
}

// debitAndInsert charges the quote and stores t in provisioning with its
// first lifecycle event, all in one database transaction
func (o *orchestrator) debitAndInsert(ctx context.Context, t *transaction.Transaction, retryOf *transaction.Transaction) error {
	if err := t.Transition(transaction.StatusProvisioning, t.CreatedAt); err != nil {
		return err
	}
	err := o.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if retryOf != nil {
			if _, err := o.ledger.RefundTx(ctx, tx, retryOf.UserID, retryOf.CostCharged, retryOf.ID.String()); err != nil {
				return fmt.Errorf("failed to refund expired transaction: %w", err)
			}
		}
		if _, err := o.ledger.DebitTx(ctx, tx, t.UserID, t.CostCharged, t.ID.String()); err != nil {
			return err
		}
		if err := o.txs.WithTx(tx).Create(ctx, t); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		return o.emit(ctx, tx, t, transaction.StatusRequested)
	})
	if err != nil {
		t.Status = transaction.StatusRequested
		return err
	}
	o.logger.Info("Transaction debited",
		"transaction_id", t.ID,
		"user_id", t.UserID,
		"kind", string(t.Kind),
		"service_id", t.ServiceID,
		"cost", t.CostCharged,
	)
	return nil
}

// recordRejected keeps a failed row for a request that could not be paid for.
// Nothing was debited, so nothing is refunded.
func (o *orchestrator) recordRejected(ctx context.Context, t *transaction.Transaction, reason string) {
	ctx = context.WithoutCancel(ctx)
	rejected := *t
	rejected.RetryOf = nil
	rejected.CostCharged = 0
	if err := rejected.Fail(reason, o.now()); err != nil {
		return
	}
	err := o.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := o.txs.WithTx(tx).Create(ctx, &rejected); err != nil {
			return err
		}
		return o.emit(ctx, tx, &rejected, transaction.StatusRequested)
	})
	if err != nil {
		o.logger.Warn("Failed to record rejected transaction", "transaction_id", t.ID, "error", err)
	}
}

// acquire asks the provider for a line, swapping lines that are banned for
// the service. When every swap comes back banned the last line is kept.
func (o *orchestrator) acquire(ctx context.Context, t *transaction.Transaction, phoneNumber string) (*provider.Line, error) {
	req := provider.LineRequest{
		ServiceID:   t.ServiceID,
		Capability:  t.Capability,
		AreaCode:    t.AreaCode,
		Carrier:     t.Carrier,
		PhoneNumber: phoneNumber,
		Rental:      t.Kind == transaction.KindRental,
		RentalDays:  t.RentalDays,
		Priority:    hasAddon(t.Addons, pricing.AddonPriority),
	}

	for attempt := 0; ; attempt++ {
		req.IdempotencyKey = fmt.Sprintf("%s:%d", t.ID, attempt)
		line, err := o.provider.AcquireLine(ctx, req)
		if err != nil {
			return nil, err
		}

		isBanned, err := o.banned.IsBanned(ctx, t.ServiceID, line.PhoneNumber)
		if err != nil {
			o.logger.Warn("Banned-number lookup failed, accepting line",
				"transaction_id", t.ID,
				"phone_number", line.PhoneNumber,
				"error", err,
			)
			return line, nil
		}
		if !isBanned {
			return line, nil
		}
		if attempt >= o.cfg.MaxLineSwaps || req.PhoneNumber != "" {
			o.logger.Warn("Accepting banned line, no swaps left",
				"transaction_id", t.ID,
				"service_id", t.ServiceID,
				"phone_number", line.PhoneNumber,
			)
			return line, nil
		}

		o.logger.Info("Line is banned for service, swapping",
			"transaction_id", t.ID,
			"service_id", t.ServiceID,
			"phone_number", line.PhoneNumber,
			"attempt", attempt,
		)
		o.releaseLine(ctx, t.ID, line.Reference)
	}
}

// activate records the line and starts the clock
func (o *orchestrator) activate(ctx context.Context, t *transaction.Transaction, line *provider.Line) error {
	ttl := o.expiry(t.ServiceID)
	next := transaction.StatusPending
	if t.Kind == transaction.KindRental {
		ttl = time.Duration(t.RentalDays) * 24 * time.Hour
		next = transaction.StatusActive
	}

	return o.commit(ctx, t, func(_ pgx.Tx, t *transaction.Transaction) error {
		now := o.now()
		t.AssignLine(line.Reference, line.PhoneNumber, now, ttl)
		if line.AreaCode != "" {
			t.AreaCode = line.AreaCode
		}
		if line.Carrier != "" {
			t.Carrier = line.Carrier
		}
		return t.Transition(next, now)
	})
}
