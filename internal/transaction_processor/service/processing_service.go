package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/shared"
)

// Failure reasons handed to the FailureRecorder
const (
	FailureReasonInvalidEvent  = "invalid_event"
	FailureReasonUnknownCharge = "unknown_charge"
)

type ProcessingServiceImpl struct {
	validator       SettlementValidator
	settler         Settler
	failureRecorder FailureRecorder
	logger          *slog.Logger
}

func NewProcessingService(
	validator SettlementValidator,
	settler Settler,
	failureRecorder FailureRecorder,
	logger *slog.Logger,
) ProcessingService {
	return &ProcessingServiceImpl{
		validator:       validator,
		settler:         settler,
		failureRecorder: failureRecorder,
		logger:          logger.With("component", "settlement_processor"),
	}
}

// ProcessSettlement returns nil once the event is either applied or recorded
// as rejected. Any other error means the event must be delivered again.
func (s *ProcessingServiceImpl) ProcessSettlement(ctx context.Context, event *payment.SettlementEvent) error {
	logger := s.logger
	if event.CorrelationID != "" {
		logger = s.logger.With("correlation_id", event.CorrelationID)
	}

	if err := s.validator.Validate(ctx, event); err != nil {
		logger.Error("Settlement event rejected", "charge_ref", event.ChargeRef, "error", err)
		return s.reject(ctx, logger, event, FailureReasonInvalidEvent)
	}

	result, err := s.settler.Settle(ctx, *event)
	switch {
	case err == nil:
		logger.Info("Settlement processed",
			"charge_ref", event.ChargeRef,
			"result", result.Result,
		)
		return nil
	case errors.Is(err, shared.ErrNotFound):
		logger.Error("Settlement for unknown charge", "charge_ref", event.ChargeRef)
		return s.reject(ctx, logger, event, FailureReasonUnknownCharge)
	case errors.Is(err, shared.ErrValidation):
		return s.reject(ctx, logger, event, FailureReasonInvalidEvent)
	default:
		return fmt.Errorf("failed to settle charge %s: %w", event.ChargeRef, err)
	}
}

func (s *ProcessingServiceImpl) reject(ctx context.Context, logger *slog.Logger, event *payment.SettlementEvent, reason string) error {
	if err := s.failureRecorder.RecordFailure(ctx, event, reason); err != nil {
		logger.Error("Failed to record rejected settlement", "charge_ref", event.ChargeRef, "error", err)
		return fmt.Errorf("failed to record rejected settlement %s: %w", event.ChargeRef, err)
	}
	return nil
}
