package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/linebroker/internal/domain/transaction"
)

// SweepReport counts what one sweep did
type SweepReport struct {
	Completed      int `json:"completed"`
	Expired        int `json:"expired"`
	RentalsExpired int `json:"rentals_expired"`
	Failed         int `json:"failed"`
	Errors         int `json:"errors"`
}

// SweepDue resolves everything whose deadline passed: pending verifications
// get a final poll and then complete or expire, rentals past their expiry
// close, and rows stuck in provisioning fail with a refund. A failing row is
// logged and counted; it does not stop the sweep.
func (o *orchestrator) SweepDue(ctx context.Context, now time.Time, batch int) (*SweepReport, error) {
	if batch <= 0 {
		batch = o.cfg.SweepBatchSize
	}
	report := &SweepReport{}

	due, err := o.txs.ListDue(ctx, transaction.KindVerification, transaction.StatusPending, now, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to list due verifications: %w", err)
	}
	for _, t := range due {
		view, err := o.refresh(ctx, ctx, t)
		if err != nil {
			o.sweepFailed(report, t, err)
			continue
		}
		switch view.Transaction.Status {
		case transaction.StatusCompleted:
			report.Completed++
		case transaction.StatusExpired:
			report.Expired++
		}
	}

	rentals, err := o.txs.ListDue(ctx, transaction.KindRental, transaction.StatusActive, now, batch)
	if err != nil {
		return report, fmt.Errorf("failed to list due rentals: %w", err)
	}
	for _, t := range rentals {
		if err := o.expireRental(ctx, t); err != nil {
			o.sweepFailed(report, t, err)
			continue
		}
		report.RentalsExpired++
	}

	stale, err := o.txs.ListStale(ctx, transaction.StatusProvisioning, now.Add(-o.cfg.StaleProvisioningAfter), batch)
	if err != nil {
		return report, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	for _, t := range stale {
		failed, err := o.failStale(ctx, t)
		if err != nil {
			o.sweepFailed(report, t, err)
			continue
		}
		if failed {
			report.Failed++
		}
	}

	if report.Completed+report.Expired+report.RentalsExpired+report.Failed+report.Errors > 0 {
		o.logger.Info("Sweep finished",
			"completed", report.Completed,
			"expired", report.Expired,
			"rentals_expired", report.RentalsExpired,
			"failed", report.Failed,
			"errors", report.Errors,
		)
	}
	return report, nil
}

// failStale fails a transaction that never left provisioning. The user lock
// guarantees the request that created it has returned.
func (o *orchestrator) failStale(ctx context.Context, t *transaction.Transaction) (bool, error) {
	unlock, err := o.locks.acquire(ctx, t.UserID)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := o.load(ctx, "", t.ID)
	if err != nil {
		return false, err
	}
	if current.Status != transaction.StatusProvisioning {
		return false, nil
	}
	o.releaseLine(ctx, current.ID, current.LineRef)
	if err := o.failAndRefund(ctx, current, ReasonProvisioningTimeout); err != nil {
		return false, err
	}
	return true, nil
}

func (o *orchestrator) sweepFailed(report *SweepReport, t *transaction.Transaction, err error) {
	report.Errors++
	o.logger.Error("Sweep failed for transaction",
		"transaction_id", t.ID,
		"kind", string(t.Kind),
		"status", string(t.Status),
		"error", err,
	)
}
