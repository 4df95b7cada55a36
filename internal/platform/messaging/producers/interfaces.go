package producers

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/linebroker/internal/domain/payment"
)

// SettlementPublisher hands verified settlement events to the processor
type SettlementPublisher interface {
	PublishSettlement(ctx context.Context, event payment.SettlementEvent) error
	Close() error
}

// DeadLetterPublisher parks messages that can never be processed
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
