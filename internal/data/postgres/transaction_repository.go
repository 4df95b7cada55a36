package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/platform/persistence"
)

const transactionColumns = `id, user_id, kind, service_id, capability, plan, area_code, carrier, addons,
		line_ref, phone_number, status, cost_charged, rental_days, extensions, code, failure_reason,
		retry_of, version, created_at, updated_at, started_at, expires_at, completed_at`

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new transaction
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := r.querier.Exec(ctx, query,
		t.ID, t.UserID, t.Kind, t.ServiceID, t.Capability, t.Plan, t.AreaCode, t.Carrier, addons(t.Addons),
		t.LineRef, t.PhoneNumber, t.Status, t.CostCharged, t.RentalDays, t.Extensions, t.Code, t.FailureReason,
		t.RetryOf, t.Version, t.CreatedAt, t.UpdatedAt, t.StartedAt, t.ExpiresAt, t.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// GetByRetryOf returns the live retry created from id, or nil when there is
// none. Failed retries were refunded and are ignored.
func (r *TransactionRepository) GetByRetryOf(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE retry_of = $1 AND status <> $2`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id, transaction.StatusFailed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get retry transaction", "retry_of", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get retry transaction: %w", err)
	}
	return t, nil
}

// Update writes the mutable fields when the stored version still matches
// t.Version, then bumps t.Version.
func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET line_ref = $1, phone_number = $2, area_code = $3, carrier = $4, status = $5,
			cost_charged = $6, rental_days = $7, extensions = $8, code = $9, failure_reason = $10,
			updated_at = $11, started_at = $12, expires_at = $13, completed_at = $14,
			version = version + 1
		WHERE id = $15 AND version = $16
	`

	result, err := r.querier.Exec(ctx, query,
		t.LineRef, t.PhoneNumber, t.AreaCode, t.Carrier, t.Status,
		t.CostCharged, t.RentalDays, t.Extensions, t.Code, t.FailureReason,
		t.UpdatedAt, t.StartedAt, t.ExpiresAt, t.CompletedAt,
		t.ID, t.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return transaction.ErrConcurrentModification{ID: t.ID}
	}
	t.Version++
	return nil
}

// CountCompleted counts the user's completed verifications since the given time
func (r *TransactionRepository) CountCompleted(ctx context.Context, userID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND kind = $2 AND status = $3 AND completed_at >= $4
	`

	var count int64
	err := r.querier.QueryRow(ctx, query, userID, transaction.KindVerification, transaction.StatusCompleted, since).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count completed verifications", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to count completed verifications: %w", err)
	}
	return count, nil
}

// ListDue returns transactions whose deadline is at or before now, oldest deadline first
func (r *TransactionRepository) ListDue(ctx context.Context, kind transaction.Kind, status transaction.Status, now time.Time, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE kind = $1 AND status = $2 AND expires_at <= $3
		ORDER BY expires_at ASC
		LIMIT $4
	`
	return r.list(ctx, "due", query, kind, status, now, limit)
}

// ListStale returns transactions that have not moved since cutoff
func (r *TransactionRepository) ListStale(ctx context.Context, status transaction.Status, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	return r.list(ctx, "stale", query, status, cutoff, limit)
}

func (r *TransactionRepository) list(ctx context.Context, what, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "list", what, "error", err)
		return nil, fmt.Errorf("failed to list %s transactions: %w", what, err)
	}
	defer rows.Close()

	var out []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.Kind, &t.ServiceID, &t.Capability, &t.Plan, &t.AreaCode, &t.Carrier, &t.Addons,
		&t.LineRef, &t.PhoneNumber, &t.Status, &t.CostCharged, &t.RentalDays, &t.Extensions, &t.Code, &t.FailureReason,
		&t.RetryOf, &t.Version, &t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.ExpiresAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// the column is NOT NULL, so a nil slice is written as an empty array
func addons(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
