package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/pricing"
)

const bpsScale = 10000

func (o *orchestrator) CreateRental(ctx context.Context, cmd CreateRental) (*transaction.Transaction, error) {
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
		kind:       transaction.KindRental,
		userID:     cmd.UserID,
		serviceID:  cmd.ServiceID,
		capability: cmd.Capability,
		plan:       cmd.Plan,
		areaCode:   cmd.AreaCode,
		carrier:    cmd.Carrier,
		addons:     cmd.Addons,
		rentalDays: cmd.Days,
	})
}

// ExtendRental re-quotes the added days at the user's current volume discount
// and debits them. The expiry moves by the added days; elapsed time is kept.
func (o *orchestrator) ExtendRental(ctx context.Context, cmd ExtendRental) (*transaction.Transaction, error) {
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

	t, err := o.load(ctx, cmd.UserID, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.Kind != transaction.KindRental || t.Status != transaction.StatusActive || t.Due(o.now()) {
		return nil, &shared.InvalidStateError{Entity: string(t.Kind), ID: t.ID.String(), State: string(t.Status), Operation: "extend"}
	}
	if t.RentalDays+cmd.Days > pricing.MaxRentalDays {
		return nil, shared.NewValidationError("days", fmt.Sprintf("a rental cannot exceed %d days", pricing.MaxRentalDays))
	}

	trailing, err := o.trailing(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	quote, err := o.pricing.Quote(pricing.QuoteRequest{
		ServiceID:             t.ServiceID,
		Capability:            t.Capability,
		Plan:                  t.Plan,
		RentalDays:            cmd.Days,
		TrailingVerifications: trailing,
	})
	if err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("%s:extend:%d", t.ID, t.Extensions+1)
	err = o.commit(ctx, t, func(tx pgx.Tx, next *transaction.Transaction) error {
		if _, err := o.ledger.DebitTx(ctx, tx, next.UserID, quote.Total, reference); err != nil {
			return err
		}
		return next.Extend(cmd.Days, quote.Total, o.now())
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReleaseRental ends an active rental early and refunds the unused share of
// its cost reduced by the refund factor
func (o *orchestrator) ReleaseRental(ctx context.Context, userID string, id uuid.UUID) (*Release, error) {
	unlock, err := o.locks.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := o.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if t.Kind != transaction.KindRental || t.Status != transaction.StatusActive {
		return nil, &shared.InvalidStateError{Entity: string(t.Kind), ID: t.ID.String(), State: string(t.Status), Operation: "release"}
	}

	ctx = context.WithoutCancel(ctx)
	now := o.now()
	refund := ProratedRefund(t.CostCharged, *t.StartedAt, *t.ExpiresAt, now, o.cfg.RefundFactorBps)

	err = o.commit(ctx, t, func(tx pgx.Tx, next *transaction.Transaction) error {
		if err := next.Transition(transaction.StatusReleased, now); err != nil {
			return err
		}
		if refund == 0 {
			return nil
		}
		_, err := o.ledger.RefundTx(ctx, tx, next.UserID, refund, next.ID.String())
		return err
	})
	if err != nil {
		return nil, err
	}

	o.releaseLine(ctx, t.ID, t.LineRef)
	return &Release{Transaction: t, Refunded: refund}, nil
}

// ProratedRefund is roundHalfUp(cost × remaining/total × factor) over whole
// seconds. Nothing is refunded once the rental has run out.
func ProratedRefund(cost int64, startedAt, expiresAt, now time.Time, factorBps int64) int64 {
	total := int64(expiresAt.Sub(startedAt) / time.Second)
	if total <= 0 || cost <= 0 || factorBps <= 0 {
		return 0
	}
	remaining := int64(expiresAt.Sub(now) / time.Second)
	remaining = max(0, min(remaining, total))
	return pricing.RoundHalfUp(cost*remaining*factorBps, total*bpsScale)
}

// expireRental closes a rental whose paid period ran out. Nothing is refunded.
func (o *orchestrator) expireRental(ctx context.Context, t *transaction.Transaction) error {
	unlock, err := o.locks.acquire(ctx, t.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := o.load(ctx, "", t.ID)
	if err != nil {
		return err
	}
	if current.Status != transaction.StatusActive || !current.Due(o.now()) {
		return nil
	}
	err = o.commit(ctx, current, func(_ pgx.Tx, next *transaction.Transaction) error {
		return next.Transition(transaction.StatusExpired, o.now())
	})
	if err != nil {
		return err
	}
	o.releaseLine(ctx, current.ID, current.LineRef)
	return nil
}
