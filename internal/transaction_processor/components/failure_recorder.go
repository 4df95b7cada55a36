package components

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/platform/messaging/producers"
	"github.com/linebroker/internal/transaction_processor/service"
)

type FailureRecorderImpl struct {
	dlq    producers.DeadLetterPublisher
	logger *slog.Logger
}

// NewFailureRecorder parks rejected settlements in the dead letter queue
// where operators can replay them once the cause is fixed
func NewFailureRecorder(dlq producers.DeadLetterPublisher, logger *slog.Logger) service.FailureRecorder {
	return &FailureRecorderImpl{
		dlq:    dlq,
		logger: logger,
	}
}

func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, event *payment.SettlementEvent, failureReason string) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rejected settlement: %w", err)
	}
	if err := r.dlq.PublishToDLQ(ctx, event.ChargeRef, value, failureReason); err != nil {
		return err
	}
	r.logger.Warn("Recorded rejected settlement",
		"charge_ref", event.ChargeRef,
		"reason", failureReason,
		"correlation_id", event.CorrelationID,
	)
	return nil
}
