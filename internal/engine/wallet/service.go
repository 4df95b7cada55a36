// Package wallet turns payment gateway charges into ledger credits.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/platform/gateway"
	"github.com/linebroker/internal/platform/metrics"
	"github.com/linebroker/internal/platform/persistence"
)

// MaxTopUp bounds a single top-up, in minor units
const MaxTopUp int64 = 1_000_000

// Settlement results, also used as metric labels
const (
	ResultCredited       = "credited"
	ResultAlreadySettled = "already_settled"
	ResultFailed         = "failed"
	ResultIgnored        = "ignored"
)

// Service is the wallet top-up contract
type Service interface {
	InitTopUp(ctx context.Context, userID string, amount int64) (*payment.Charge, error)
	GetTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error)
	HandleWebhook(ctx context.Context, payload []byte, token string) (*payment.SettlementEvent, error)
	Settle(ctx context.Context, event payment.SettlementEvent) (*Settlement, error)
	VerifyTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error)
}

// Settlement is the outcome of applying one settlement event
type Settlement struct {
	Charge *payment.Charge `json:"charge"`
	Result string          `json:"result"`
}

type service struct {
	db       persistence.TxRunner
	charges  payment.Repository
	ledger   ledger.Service
	gateway  gateway.Client
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates the wallet service
func NewService(logger *slog.Logger, db persistence.TxRunner, charges payment.Repository, ledgerSvc ledger.Service, gw gateway.Client, currency string) Service {
	return &service{
		db:       db,
		charges:  charges,
		ledger:   ledgerSvc,
		gateway:  gw,
		currency: currency,
		logger:   logger.With("component", "wallet"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InitTopUp records a pending charge before calling the gateway so a
// settlement can never arrive for a charge we do not know about.
func (s *service) InitTopUp(ctx context.Context, userID string, amount int64) (*payment.Charge, error) {
	if userID == "" {
		return nil, shared.NewValidationError("user_id", "must not be empty")
	}
	if amount <= 0 || amount > MaxTopUp {
		return nil, shared.NewValidationError("amount", fmt.Sprintf("must be between 1 and %d", MaxTopUp))
	}

	charge := payment.NewCharge(userID, amount, s.currency)
	if err := s.charges.Create(ctx, charge); err != nil {
		return nil, fmt.Errorf("failed to create charge: %w", err)
	}

	started, err := s.gateway.ChargeInit(ctx, gateway.ChargeRequest{
		Reference: charge.Reference,
		UserRef:   userID,
		Amount:    amount,
		Currency:  s.currency,
	})
	if err != nil {
		s.logger.Error("Charge initialization failed", "reference", charge.Reference, "user_id", userID, "error", err)
		if markErr := s.charges.UpdateStatus(context.WithoutCancel(ctx), charge.Reference, payment.ChargeFailed, ""); markErr != nil {
			s.logger.Error("Failed to mark charge failed", "reference", charge.Reference, "error", markErr)
		}
		return nil, err
	}

	if err := s.charges.UpdateStatus(ctx, charge.Reference, payment.ChargePending, started.RedirectURL); err != nil {
		return nil, fmt.Errorf("failed to store redirect: %w", err)
	}
	charge.RedirectURL = started.RedirectURL

	s.logger.Info("Top-up initialized", "reference", charge.Reference, "user_id", userID, "amount", amount)
	return charge, nil
}

func (s *service) GetTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	charge, err := s.charges.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if charge.UserID != userID {
		return nil, payment.ErrChargeNotFound{Reference: reference}
	}
	return charge, nil
}

// HandleWebhook authenticates a gateway notification. Nothing is credited
// here; the returned event is published and applied by Settle.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, token string) (*payment.SettlementEvent, error) {
	notification, err := s.gateway.VerifyWebhook(payload, token)
	if err != nil {
		s.logger.Warn("Rejected payment notification", "error", err)
		return nil, err
	}
	if _, err := s.charges.GetByReference(ctx, notification.ChargeRef); err != nil {
		return nil, err
	}
	return &payment.SettlementEvent{
		ChargeRef:  notification.ChargeRef,
		Status:     notification.Status,
		Amount:     notification.Amount,
		ReceivedAt: s.now(),
	}, nil
}

// Settle applies a settlement event exactly once. The charge row lock and the
// ledger reference both guard against duplicates, so replays only report
// already_settled.
func (s *service) Settle(ctx context.Context, event payment.SettlementEvent) (*Settlement, error) {
	if event.ChargeRef == "" {
		return nil, shared.NewValidationError("charge_ref", "must not be empty")
	}

	var result Settlement
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		charges := s.charges.WithTx(tx)
		charge, err := charges.LockForUpdate(ctx, event.ChargeRef)
		if err != nil {
			return err
		}
		result.Charge = charge

		if charge.Status == payment.ChargeSettled {
			result.Result = ResultAlreadySettled
			return nil
		}

		switch event.Status {
		case payment.ChargeSettled:
			amount := charge.Amount
			if event.Amount > 0 && event.Amount != charge.Amount {
				s.logger.Warn("Settled amount differs from charge",
					"reference", charge.Reference,
					"charged", charge.Amount,
					"settled", event.Amount,
				)
				amount = event.Amount
			}
			if _, err := s.ledger.CreditTx(ctx, tx, charge.UserID, amount, charge.LedgerReference()); err != nil {
				return err
			}
			if err := charges.UpdateStatus(ctx, charge.Reference, payment.ChargeSettled, ""); err != nil {
				return err
			}
			charge.Status = payment.ChargeSettled
			result.Result = ResultCredited
		case payment.ChargeFailed:
			if charge.Status == payment.ChargeFailed {
				result.Result = ResultIgnored
				return nil
			}
			if err := charges.UpdateStatus(ctx, charge.Reference, payment.ChargeFailed, ""); err != nil {
				return err
			}
			charge.Status = payment.ChargeFailed
			result.Result = ResultFailed
		default:
			result.Result = ResultIgnored
		}
		return nil
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to settle charge %s: %w", event.ChargeRef, err)
	}

	metrics.SettlementsTotal.WithLabelValues(result.Result).Inc()
	s.logger.Info("Settlement applied",
		"reference", event.ChargeRef,
		"status", string(event.Status),
		"result", result.Result,
		"correlation_id", event.CorrelationID,
	)
	return &result, nil
}

// VerifyTopUp asks the gateway for the charge state and settles it when the
// webhook never arrived
func (s *service) VerifyTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	charge, err := s.GetTopUp(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	if charge.Status == payment.ChargeSettled {
		return charge, nil
	}

	state, err := s.gateway.ChargeVerify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if state.Status == payment.ChargePending {
		return charge, nil
	}

	settled, err := s.Settle(ctx, payment.SettlementEvent{
		ChargeRef:  reference,
		Status:     state.Status,
		Amount:     state.Amount,
		ReceivedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	return settled.Charge, nil
}
