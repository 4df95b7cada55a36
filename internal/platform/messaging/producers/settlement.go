package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/payment"
)

// SettlementProducer writes settlement events keyed by charge reference so
// every event of one charge lands on the same partition, in order.
type SettlementProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewSettlementProducer ensures the settlement topic exists and returns a
// synchronous producer. The webhook is only acknowledged once the write is
// durable, so the gateway retries anything we lose.
func NewSettlementProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*SettlementProducer, error) {
	if cfg.SettlementTopic == "" {
		return nil, fmt.Errorf("kafka settlement topic is not configured")
	}
	logger = logger.With("component", "settlement_producer")

	if err := ensureTopic(ctx, cfg, cfg.SettlementTopic, logger); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.SettlementTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &SettlementProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.SettlementTopic,
	}, nil
}

func (p *SettlementProducer) PublishSettlement(ctx context.Context, event payment.SettlementEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ChargeRef),
		Value: value,
	}
	if event.CorrelationID != "" {
		msg.Headers = []kafka.Header{{Key: "correlation-id", Value: []byte(event.CorrelationID)}}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish settlement event",
			"topic", p.topic,
			"charge_ref", event.ChargeRef,
			"error", err,
		)
		return fmt.Errorf("failed to publish settlement to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published settlement event",
		"topic", p.topic,
		"charge_ref", event.ChargeRef,
		"status", string(event.Status),
	)
	return nil
}

func (p *SettlementProducer) Close() error {
	p.logger.Info("Closing settlement producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close settlement writer for topic %s: %w", p.topic, err)
	}
	return nil
}
