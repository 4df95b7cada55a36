package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/transaction_processor/service"
)

type SettlementValidatorImpl struct {
	logger *slog.Logger
}

func NewSettlementValidator(logger *slog.Logger) service.SettlementValidator {
	return &SettlementValidatorImpl{logger: logger}
}

// Validate checks the fields Settle relies on. Events come from our own
// webhook handler, so a failure here means a bug or a foreign producer.
func (v *SettlementValidatorImpl) Validate(_ context.Context, event *payment.SettlementEvent) error {
	if event.ChargeRef == "" {
		return shared.NewValidationError("charge_ref", "must not be empty")
	}
	if event.Status != payment.ChargeSettled && event.Status != payment.ChargeFailed {
		v.logger.Warn("Unexpected settlement status", "charge_ref", event.ChargeRef, "status", string(event.Status))
		return shared.NewValidationError("status", fmt.Sprintf("unexpected settlement status %q", event.Status))
	}
	if event.Amount < 0 {
		return shared.NewValidationError("amount", "must not be negative")
	}
	return nil
}
