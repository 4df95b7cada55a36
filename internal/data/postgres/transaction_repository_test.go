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

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
)

var txColumns = []string{
	"id", "user_id", "kind", "service_id", "capability", "plan", "area_code", "carrier", "addons",
	"line_ref", "phone_number", "status", "cost_charged", "rental_days", "extensions", "code", "failure_reason",
	"retry_of", "version", "created_at", "updated_at", "started_at", "expires_at", "completed_at",
}

// anyArgs matches n arguments of any value
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newPendingVerification() *transaction.Transaction {
	now := time.Now().UTC().Truncate(time.Second)
	t := transaction.New(transaction.KindVerification, "user-1", "whatsapp", shared.CapabilitySMS, shared.PlanPayAsYouGo, now)
	t.Status = transaction.StatusPending
	t.CostCharged = 100
	t.Addons = []string{}
	t.AssignLine("ref-1", "+15550100", now, 15*time.Minute)
	return t
}

func txRow(t *transaction.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(txColumns).AddRow(
		t.ID, t.UserID, t.Kind, t.ServiceID, t.Capability, t.Plan, t.AreaCode, t.Carrier, t.Addons,
		t.LineRef, t.PhoneNumber, t.Status, t.CostCharged, t.RentalDays, t.Extensions, t.Code, t.FailureReason,
		t.RetryOf, t.Version, t.CreatedAt, t.UpdatedAt, t.StartedAt, t.ExpiresAt, t.CompletedAt,
	)
}

func TestTransactionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	tx := transaction.New(transaction.KindRental, "user-1", "telegram", shared.CapabilitySMS, shared.PlanPro, time.Now())

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
			WithArgs(
				tx.ID, "user-1", transaction.KindRental, "telegram", shared.CapabilitySMS, shared.PlanPro, "", "", []string{},
				"", "", tx.Status, int64(0), 0, 0, "", "",
				(*uuid.UUID)(nil), 1, tx.CreatedAt, tx.UpdatedAt, tx.StartedAt, tx.ExpiresAt, tx.CompletedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(context.Background(), tx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		dbErr := errors.New("duplicate key value violates unique constraint")
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
			WithArgs(anyArgs(24)...).
			WillReturnError(dbErr)

		err := repo.Create(context.Background(), tx)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to create transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	expected := newPendingVerification()
	query := regexp.QuoteMeta("FROM transactions WHERE id = $1")

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnRows(txRow(expected))

		got, err := repo.GetByID(context.Background(), expected.ID)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(query).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(context.Background(), id)
		assert.Nil(t, got)
		var notFound transaction.ErrTransactionNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, id, notFound.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_GetByRetryOf_None(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE retry_of = $1 AND status <> $2")).
		WithArgs(id, transaction.StatusFailed).
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByRetryOf(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	query := regexp.QuoteMeta("UPDATE transactions") + ".*" + regexp.QuoteMeta("WHERE id = $15 AND version = $16")

	t.Run("bumps version", func(t *testing.T) {
		tx := newPendingVerification()
		require.NoError(t, tx.Transition(transaction.StatusCompleted, time.Now()))

		mock.ExpectExec(query).
			WithArgs(
				tx.LineRef, tx.PhoneNumber, tx.AreaCode, tx.Carrier, transaction.StatusCompleted,
				tx.CostCharged, tx.RentalDays, tx.Extensions, tx.Code, tx.FailureReason,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				tx.ID, 1,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.Update(context.Background(), tx))
		assert.Equal(t, 2, tx.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		tx := newPendingVerification()
		mock.ExpectExec(query).
			WithArgs(append(anyArgs(14), tx.ID, 1)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(context.Background(), tx)
		var conflict transaction.ErrConcurrentModification
		require.ErrorAs(t, err, &conflict)
		assert.ErrorIs(t, err, shared.ErrConcurrentModification)
		assert.Equal(t, 1, tx.Version, "version is untouched on conflict")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_CountCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	since := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM transactions")).
		WithArgs("user-1", transaction.KindVerification, transaction.StatusCompleted, since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(57)))

	count, err := repo.CountCompleted(context.Background(), "user-1", since)
	require.NoError(t, err)
	assert.Equal(t, int64(57), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_ListDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()
	due := newPendingVerification()

	t.Run("rows", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE kind = $1 AND status = $2 AND expires_at <= $3")).
			WithArgs(transaction.KindVerification, transaction.StatusPending, now, 50).
			WillReturnRows(txRow(due))

		list, err := repo.ListDue(context.Background(), transaction.KindVerification, transaction.StatusPending, now, 50)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, due.ID, list[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("expires_at <=").
			WithArgs(transaction.KindRental, transaction.StatusActive, now, 50).
			WillReturnError(errors.New("timeout"))

		_, err := repo.ListDue(context.Background(), transaction.KindRental, transaction.StatusActive, now, 50)
		assert.ErrorContains(t, err, "failed to list due transactions")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_ListStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	cutoff := time.Now().Add(-5 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND updated_at < $2")).
		WithArgs(transaction.StatusProvisioning, cutoff, 10).
		WillReturnRows(pgxmock.NewRows(txColumns))

	list, err := repo.ListStale(context.Background(), transaction.StatusProvisioning, cutoff, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}
