package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	domainbanned "github.com/linebroker/internal/domain/banned"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/platform/provider"
)

func (o *orchestrator) CreateVerification(ctx context.Context, cmd CreateVerification) (*transaction.Transaction, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if err := checkAddons(cmd.Addons, cmd.AreaCode, cmd.Carrier); err != nil {
		return nil, err
	}

	unlock, err := o.locks.acquire(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return o.provision(ctx, provisionRequest{
		kind:       transaction.KindVerification,
		userID:     cmd.UserID,
		serviceID:  cmd.ServiceID,
		capability: cmd.Capability,
		plan:       cmd.Plan,
		areaCode:   cmd.AreaCode,
		carrier:    cmd.Carrier,
		addons:     cmd.Addons,
	})
}

// Status reports the transaction, polling the provider once while a
// verification is pending
func (o *orchestrator) Status(ctx context.Context, userID string, id uuid.UUID) (*View, error) {
	t, err := o.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return o.refresh(ctx, ctx, t)
}

// AwaitCode polls until a code arrives, the verification expires, maxWait
// passes or Cancel interrupts the wait. Polling uses the provider at the
// configured interval; the deadline is the earlier of expiry and now+maxWait.
func (o *orchestrator) AwaitCode(ctx context.Context, userID string, id uuid.UUID, maxWait time.Duration) (*View, error) {
	t, err := o.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if maxWait <= 0 || t.Kind != transaction.KindVerification || t.Status != transaction.StatusPending {
		return o.refresh(ctx, ctx, t)
	}

	deadline := o.now().Add(maxWait)
	if t.ExpiresAt != nil && t.ExpiresAt.Before(deadline) {
		deadline = *t.ExpiresAt
	}

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	deregister := o.waiters.register(t.ID, cancel)
	defer deregister()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return o.afterInterrupt(ctx, t)
		case <-timer.C:
		}

		view, err := o.refresh(ctx, waitCtx, t)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return o.afterInterrupt(ctx, t)
			}
			return nil, err
		}
		t = view.Transaction
		if t.Status != transaction.StatusPending {
			return view, nil
		}

		remaining := deadline.Sub(o.now())
		if remaining <= 0 {
			return view, nil
		}
		timer.Reset(min(o.cfg.PollInterval, remaining))
	}
}

// afterInterrupt waits for the cancelling call to release the user lock and
// reports the state it left behind
func (o *orchestrator) afterInterrupt(ctx context.Context, t *transaction.Transaction) (*View, error) {
	unlock, err := o.locks.acquire(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	unlock()
	return o.view(ctx, t.UserID, t.ID)
}

// view reloads a transaction and builds its view without polling
func (o *orchestrator) view(ctx context.Context, userID string, id uuid.UUID) (*View, error) {
	t, err := o.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return o.describe(ctx, t), nil
}

func (o *orchestrator) describe(ctx context.Context, t *transaction.Transaction) *View {
	view := &View{Transaction: t}
	if t.Kind == transaction.KindVerification && t.Status == transaction.StatusExpired {
		view.Decision = o.decision(ctx, t)
	}
	return view
}

// refresh polls a pending verification once and applies what it learns. Writes
// use ctx; only the provider call is bound to pollCtx so an interrupted wait
// never aborts a transition halfway.
func (o *orchestrator) refresh(ctx, pollCtx context.Context, t *transaction.Transaction) (*View, error) {
	if t.Kind != transaction.KindVerification || t.Status != transaction.StatusPending {
		return o.describe(ctx, t), nil
	}

	res, err := o.provider.PollCode(pollCtx, t.LineRef)
	if err != nil {
		if pollCtx.Err() != nil {
			return nil, err
		}
		o.logger.Warn("Code poll failed", "transaction_id", t.ID, "error", err)
		if !t.Due(o.now()) {
			return o.describe(ctx, t), nil
		}
		res = &provider.CodeResult{Status: provider.CodePending}
	}

	if res.Delivered() {
		if err := o.complete(ctx, t, res); err != nil {
			return o.settleConflict(ctx, t, err)
		}
		return o.describe(ctx, t), nil
	}

	if t.Due(o.now()) {
		decision, err := o.Expire(ctx, t)
		if err != nil {
			return o.settleConflict(ctx, t, err)
		}
		fresh, err := o.load(ctx, "", t.ID)
		if err != nil {
			return nil, err
		}
		return &View{Transaction: fresh, Decision: decision}, nil
	}
	return o.describe(ctx, t), nil
}

// settleConflict turns a lost race into the state the winner left behind
func (o *orchestrator) settleConflict(ctx context.Context, t *transaction.Transaction, err error) (*View, error) {
	if !errors.Is(err, shared.ErrConcurrentModification) && !errors.Is(err, shared.ErrInvalidState) {
		return nil, err
	}
	return o.view(ctx, "", t.ID)
}

func (o *orchestrator) complete(ctx context.Context, t *transaction.Transaction, res *provider.CodeResult) error {
	return o.commit(ctx, t, func(_ pgx.Tx, next *transaction.Transaction) error {
		next.Code = res.Code
		if next.Code == "" {
			next.Code = res.Transcript
		}
		return next.Transition(transaction.StatusCompleted, o.now())
	})
}

// Expire moves a pending verification to expired, refunds its full cost and
// counts the failure against the line. Expiring an already expired
// verification only rebuilds the decision.
func (o *orchestrator) Expire(ctx context.Context, t *transaction.Transaction) (*transaction.RetryDecision, error) {
	ctx = context.WithoutCancel(ctx)
	unlock, err := o.locks.acquire(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := o.load(ctx, "", t.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == transaction.StatusExpired {
		return o.decision(ctx, current), nil
	}

	err = o.commit(ctx, current, func(tx pgx.Tx, next *transaction.Transaction) error {
		if err := next.Transition(transaction.StatusExpired, o.now()); err != nil {
			return err
		}
		next.FailureReason = ReasonCodeNotDelivered
		if _, err := o.ledger.RefundTx(ctx, tx, next.UserID, next.CostCharged, next.ID.String()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	*t = *current

	// the document store is outside the ledger transaction; a lost increment
	// only weakens line selection
	if _, err := o.banned.RecordFailure(ctx, domainbanned.Failure{
		PhoneNumber: current.PhoneNumber,
		ServiceID:   current.ServiceID,
		AreaCode:    current.AreaCode,
		Carrier:     current.Carrier,
		At:          o.now(),
	}); err != nil {
		o.logger.Error("Failed to record line failure",
			"transaction_id", current.ID,
			"phone_number", current.PhoneNumber,
			"error", err,
		)
	}
	o.releaseLine(ctx, current.ID, current.LineRef)

	return o.decision(ctx, current), nil
}

// decision lists the retry paths open for an expired verification
func (o *orchestrator) decision(ctx context.Context, t *transaction.Transaction) *transaction.RetryDecision {
	d := &transaction.RetryDecision{TransactionID: t.ID, Refunded: t.CostCharged}

	if t.PhoneNumber != "" {
		isBanned, err := o.banned.IsBanned(ctx, t.ServiceID, t.PhoneNumber)
		if err == nil && !isBanned {
			d.Options = append(d.Options, transaction.RetryReuseSameLine)
		}
	}
	d.Options = append(d.Options, transaction.RetryNewLine)
	if t.Capability == shared.CapabilitySMS {
		d.Options = append(d.Options, transaction.RetryUpgradeToVoice)
	}
	return d
}

// Cancel stops a pending verification. The cost is refunded unless a code was
// delivered before the cancellation landed.
func (o *orchestrator) Cancel(ctx context.Context, userID string, id uuid.UUID) (*transaction.Transaction, error) {
	unlock, err := o.locks.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := o.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if t.Kind != transaction.KindVerification || !t.CanTransition(transaction.StatusCancelled) {
		return nil, &shared.InvalidStateError{Entity: string(t.Kind), ID: t.ID.String(), State: string(t.Status), Operation: "cancel"}
	}

	if n := o.waiters.interrupt(t.ID); n > 0 {
		o.logger.Debug("Interrupted code waiters", "transaction_id", t.ID, "waiters", n)
	}

	// last look so a code that already arrived is not refunded
	ctx = context.WithoutCancel(ctx)
	delivered := &provider.CodeResult{Status: provider.CodePending}
	if res, err := o.provider.PollCode(ctx, t.LineRef); err != nil {
		o.logger.Warn("Final poll before cancel failed", "transaction_id", t.ID, "error", err)
	} else {
		delivered = res
	}

	err = o.commit(ctx, t, func(tx pgx.Tx, next *transaction.Transaction) error {
		if err := next.Transition(transaction.StatusCancelled, o.now()); err != nil {
			return err
		}
		next.FailureReason = ReasonCancelledByUser
		if delivered.Delivered() {
			next.Code = delivered.Code
			if next.Code == "" {
				next.Code = delivered.Transcript
			}
			return nil
		}
		_, err := o.ledger.RefundTx(ctx, tx, next.UserID, next.CostCharged, next.ID.String())
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrentModification) {
			fresh, loadErr := o.load(ctx, userID, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, &shared.InvalidStateError{Entity: string(fresh.Kind), ID: fresh.ID.String(), State: string(fresh.Status), Operation: "cancel"}
		}
		return nil, err
	}

	o.releaseLine(ctx, t.ID, t.LineRef)
	return t, nil
}

// Retry replaces an expired verification with a new one. The expired cost is
// refunded in the same database transaction that debits the new quote.
func (o *orchestrator) Retry(ctx context.Context, cmd RetryCommand) (*transaction.Transaction, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if cmd.TransactionID == uuid.Nil {
		return nil, shared.NewValidationError("transaction_id", "is required")
	}

	unlock, err := o.locks.acquire(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	original, err := o.load(ctx, cmd.UserID, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	if original.Kind != transaction.KindVerification || original.Status != transaction.StatusExpired {
		return nil, &shared.InvalidStateError{Entity: string(original.Kind), ID: original.ID.String(), State: string(original.Status), Operation: "retry"}
	}
	previous, err := o.txs.GetByRetryOf(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		return nil, &shared.InvalidStateError{Entity: string(original.Kind), ID: original.ID.String(), State: "retried", Operation: "retry"}
	}

	req := provisionRequest{
		kind:       transaction.KindVerification,
		userID:     original.UserID,
		serviceID:  original.ServiceID,
		capability: original.Capability,
		plan:       cmd.Plan,
		areaCode:   original.AreaCode,
		carrier:    original.Carrier,
		addons:     original.Addons,
		retryOf:    original,
	}
	if req.plan == "" {
		req.plan = original.Plan
	}

	switch cmd.Option {
	case transaction.RetryReuseSameLine:
		isBanned, err := o.banned.IsBanned(ctx, original.ServiceID, original.PhoneNumber)
		if err != nil {
			return nil, err
		}
		if isBanned || original.PhoneNumber == "" {
			return nil, shared.NewValidationError("option", "the previous line cannot be reused for this service")
		}
		req.phoneNumber = original.PhoneNumber
	case transaction.RetryUpgradeToVoice:
		if original.Capability == shared.CapabilityVoice {
			return nil, shared.NewValidationError("option", "verification already uses voice")
		}
		req.capability = shared.CapabilityVoice
	}

	o.logger.Info("Retrying expired verification",
		"transaction_id", original.ID,
		"user_id", original.UserID,
		"option", string(cmd.Option),
	)
	return o.provision(ctx, req)
}
