package producers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/payment"
)

// MockKafkaWriter mocks KafkaWriter interface
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ KafkaWriter = (*MockKafkaWriter)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSettlementProducer_PublishSettlement(t *testing.T) {
	ctx := context.Background()
	event := payment.SettlementEvent{
		ChargeRef:     "c-1",
		Status:        payment.ChargeSettled,
		Amount:        1000,
		CorrelationID: "corr-1",
		ReceivedAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("KeyedByChargeRef", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		producer := &SettlementProducer{logger: testLogger(), writer: writer, topic: "payment_settlements"}

		writer.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != "c-1" {
				return false
			}
			var decoded payment.SettlementEvent
			if err := json.Unmarshal(msgs[0].Value, &decoded); err != nil {
				return false
			}
			return decoded.ChargeRef == event.ChargeRef &&
				decoded.Amount == event.Amount &&
				decoded.ReceivedAt.Equal(event.ReceivedAt) &&
				len(msgs[0].Headers) == 1 &&
				string(msgs[0].Headers[0].Value) == "corr-1"
		})).Return(nil).Once()

		require.NoError(t, producer.PublishSettlement(ctx, event))
		writer.AssertExpectations(t)
	})

	t.Run("WriterError", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		producer := &SettlementProducer{logger: testLogger(), writer: writer, topic: "payment_settlements"}
		writeErr := errors.New("leader not available")
		writer.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writeErr).Once()

		err := producer.PublishSettlement(ctx, event)

		assert.ErrorIs(t, err, writeErr)
		writer.AssertExpectations(t)
	})
}

func TestSettlementProducer_Close(t *testing.T) {
	writer := new(MockKafkaWriter)
	producer := &SettlementProducer{logger: testLogger(), writer: writer, topic: "payment_settlements"}
	closeErr := errors.New("close failed")
	writer.On("Close").Return(closeErr).Once()

	assert.ErrorIs(t, producer.Close(), closeErr)
	writer.AssertExpectations(t)
}
