package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/outbox"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
)

func TestOutboxRepository_WithTx(t *testing.T) {
	repo := &OutboxRepository{querier: nil, logger: newTestLogger()}

	mockTx := pgx.Tx(nil)
	txRepo := repo.WithTx(mockTx)

	assert.NotNil(t, txRepo)
	outboxRepo, ok := txRepo.(*OutboxRepository)
	assert.True(t, ok)
	assert.Equal(t, mockTx, outboxRepo.querier)
}

func TestOutboxRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger(), now: time.Now}
	tx := newPendingVerification()
	message, err := outbox.NewMessage(transaction.NewEvent(tx, transaction.StatusProvisioning))
	require.NoError(t, err)

	t.Run("assigns id", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO transaction_outbox")).
			WithArgs(message.EventID, tx.ID, "user-1", message.Payload, shared.OutboxStatusPending, 0, message.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		require.NoError(t, repo.Create(context.Background(), message))
		assert.Equal(t, int64(42), message.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		dbErr := errors.New("insert failed")
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO transaction_outbox")).
			WithArgs(anyArgs(7)...).
			WillReturnError(dbErr)

		err := repo.Create(context.Background(), message)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_ClaimPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &OutboxRepository{querier: mock, logger: newTestLogger(), now: func() time.Time { return now }}
	older, newer := now.Add(-2*time.Minute), now.Add(-time.Minute)
	columns := []string{"id", "event_id", "transaction_id", "user_id", "payload", "status", "attempts", "created_at", "last_attempt_at"}

	t.Run("returns claimed rows oldest first", func(t *testing.T) {
		firstEvent, txID := uuid.New(), uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WithArgs(shared.OutboxStatusPending, now.Add(-ClaimLease), 100, now).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(int64(2), uuid.New(), txID, "user-1", []byte(`{"to":"completed"}`), shared.OutboxStatusPending, 0, newer, &now).
				AddRow(int64(1), firstEvent, txID, "user-1", []byte(`{"to":"pending"}`), shared.OutboxStatusPending, 1, older, &now))

		messages, err := repo.ClaimPending(context.Background(), 100)

		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, firstEvent, messages[0].EventID)
		assert.Equal(t, 1, messages[0].Attempts)
		assert.Equal(t, int64(2), messages[1].ID)
		require.NotNil(t, messages[0].LastAttemptAt)
		assert.True(t, now.Equal(*messages[0].LastAttemptAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WithArgs(shared.OutboxStatusPending, now.Add(-ClaimLease), 10, now).
			WillReturnError(dbErr)

		messages, err := repo.ClaimPending(context.Background(), 10)

		assert.Nil(t, messages)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_UpdateStatusAndAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger(), now: time.Now}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE transaction_outbox SET status = $1")).
		WithArgs(shared.OutboxStatusProcessed, pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdateStatus(context.Background(), 1, shared.OutboxStatusProcessed))

	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).
		WithArgs(pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = repo.IncrementAttempts(context.Background(), 7)
	assert.Equal(t, outbox.ErrMessageNotFound{ID: 7}, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
