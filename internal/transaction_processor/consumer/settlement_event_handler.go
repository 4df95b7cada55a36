package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/platform/messaging/producers"
	"github.com/linebroker/internal/transaction_processor/service"
)

// SettlementEventHandler decodes settlement messages from Kafka
type SettlementEventHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

// NewSettlementEventHandler creates a new handler
func NewSettlementEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *SettlementEventHandler {
	return &SettlementEventHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger.With("component", "settlement_handler"),
	}
}

// HandleMessage is a consumers.MessageHandler. Undecodable messages go to the
// DLQ; they are retried only when the DLQ write itself fails.
func (h *SettlementEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event payment.SettlementEvent
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("Failed to unmarshal settlement event", "error", err, "message_key", string(key))

		reason := fmt.Sprintf("unmarshal_failed: %s", err.Error())
		if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
			h.logger.Error("Failed to publish message to DLQ after unmarshal error",
				"dlq_error", dlqErr,
				"message_key", string(key),
			)
			return fmt.Errorf("failed to unmarshal message value: %w", err)
		}
		return nil
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}
	logger.Info("Received settlement event",
		"charge_ref", event.ChargeRef,
		"status", string(event.Status),
		"amount", event.Amount,
	)

	if err := h.processingService.ProcessSettlement(ctx, &event); err != nil {
		logger.Error("Failed to process settlement", "charge_ref", event.ChargeRef, "error", err)
		return fmt.Errorf("processing settlement %s failed: %w", event.ChargeRef, err)
	}
	return nil
}
