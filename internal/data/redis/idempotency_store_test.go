package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/idempotency"
)

func newStore(t *testing.T) (*IdempotencyStore, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	return &IdempotencyStore{client: client, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, mock
}

func encode(t *testing.T, rec idempotency.Record) string {
	t.Helper()
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(b)
}

func TestIdempotencyStore_Reserve(t *testing.T) {
	ttl := time.Minute
	inProgress := encode(t, idempotency.Record{RequestHash: "h1", State: idempotency.StateInProgress})

	t.Run("fresh key", func(t *testing.T) {
		store, mock := newStore(t)
		mock.ExpectSetNX("idempotency:k1", inProgress, ttl).SetVal(true)

		existing, reserved, err := store.Reserve(context.Background(), "k1", "h1", ttl)
		require.NoError(t, err)
		assert.True(t, reserved)
		assert.Nil(t, existing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completed key is returned for replay", func(t *testing.T) {
		store, mock := newStore(t)
		done := encode(t, idempotency.Record{RequestHash: "h1", State: idempotency.StateCompleted, StatusCode: 201, Body: json.RawMessage(`{"id":"tx-1"}`)})
		mock.ExpectSetNX("idempotency:k1", inProgress, ttl).SetVal(false)
		mock.ExpectGet("idempotency:k1").SetVal(done)

		existing, reserved, err := store.Reserve(context.Background(), "k1", "h1", ttl)
		require.NoError(t, err)
		assert.False(t, reserved)
		require.NotNil(t, existing)
		assert.Equal(t, idempotency.StateCompleted, existing.State)
		assert.Equal(t, 201, existing.StatusCode)
		assert.JSONEq(t, `{"id":"tx-1"}`, string(existing.Body))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("key expired between calls is claimed again", func(t *testing.T) {
		store, mock := newStore(t)
		mock.ExpectSetNX("idempotency:k1", inProgress, ttl).SetVal(false)
		mock.ExpectGet("idempotency:k1").RedisNil()
		mock.ExpectSetNX("idempotency:k1", inProgress, ttl).SetVal(true)

		_, reserved, err := store.Reserve(context.Background(), "k1", "h1", ttl)
		require.NoError(t, err)
		assert.True(t, reserved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis down", func(t *testing.T) {
		store, mock := newStore(t)
		mock.ExpectSetNX("idempotency:k1", inProgress, ttl).SetErr(errors.New("connection refused"))

		_, _, err := store.Reserve(context.Background(), "k1", "h1", ttl)
		assert.ErrorContains(t, err, "failed to reserve idempotency key")
	})
}

func TestIdempotencyStore_CompleteAndRelease(t *testing.T) {
	store, mock := newStore(t)
	rec := &idempotency.Record{RequestHash: "h2", StatusCode: 200, Body: json.RawMessage(`{"ok":true}`)}
	expected := encode(t, idempotency.Record{RequestHash: "h2", State: idempotency.StateCompleted, StatusCode: 200, Body: json.RawMessage(`{"ok":true}`)})

	mock.ExpectSet("idempotency:k2", expected, 24*time.Hour).SetVal("OK")
	require.NoError(t, store.Complete(context.Background(), "k2", rec, 24*time.Hour))
	assert.Equal(t, idempotency.StateCompleted, rec.State)

	mock.ExpectDel("idempotency:k2").SetVal(1)
	require.NoError(t, store.Release(context.Background(), "k2"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
