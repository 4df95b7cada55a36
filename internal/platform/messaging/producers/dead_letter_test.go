package producers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	ctx := context.Background()
	dlqTopic := "test-dlq-topic"

	t.Run("WrapsOriginal", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		producer := &DLQProducer{logger: testLogger(), writer: writer, dlqTopic: dlqTopic}
		original := []byte(`{"charge_ref":`)

		writer.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != "c-1" {
				return false
			}
			var letter DeadLetter
			if err := json.Unmarshal(msgs[0].Value, &letter); err != nil {
				return false
			}
			return letter.OriginalKey == "c-1" &&
				letter.OriginalValue == string(original) &&
				letter.Reason == "unmarshal_failed" &&
				!letter.ParkedAt.IsZero() &&
				string(msgs[0].Headers[0].Value) == "unmarshal_failed"
		})).Return(nil).Once()

		require.NoError(t, producer.PublishToDLQ(ctx, "c-1", original, "unmarshal_failed"))
		writer.AssertExpectations(t)
	})

	t.Run("WriterError", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		producer := &DLQProducer{logger: testLogger(), writer: writer, dlqTopic: dlqTopic}
		writeErr := errors.New("kafka DLQ write error")
		writer.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writeErr).Once()

		err := producer.PublishToDLQ(ctx, "c-1", []byte("x"), "writer_error")

		assert.ErrorIs(t, err, writeErr)
	})

	t.Run("Disabled", func(t *testing.T) {
		producer := &DLQProducer{logger: testLogger()}

		err := producer.PublishToDLQ(ctx, "c-1", []byte("x"), "disabled")

		assert.ErrorIs(t, err, ErrDLQDisabled)
		assert.NoError(t, producer.Close())
	})
}

func TestDLQProducer_Close(t *testing.T) {
	writer := new(MockKafkaWriter)
	producer := &DLQProducer{logger: testLogger(), writer: writer, dlqTopic: "dlq"}
	writer.On("Close").Return(nil).Once()

	require.NoError(t, producer.Close())
	writer.AssertExpectations(t)
}
