// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository works against a persistence.Querier so the same code runs on
// the pool or inside a caller-owned transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/linebroker/internal/domain/ledger"
	"github.com/linebroker/internal/platform/persistence"
)

const ledgerColumns = `id, user_id, amount, kind, reference, created_at`

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx so entries and the advisory lock share
// the caller's transaction.
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Insert appends entry. A second entry with the same (kind, reference) is not
// written; the stored one is returned with inserted=false.
func (r *LedgerRepository) Insert(ctx context.Context, entry *ledger.Entry) (*ledger.Entry, bool, error) {
	query := `
		INSERT INTO ledger_entries (id, user_id, amount, kind, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, reference) DO NOTHING
		RETURNING ` + ledgerColumns

	stored, err := scanEntry(r.querier.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Amount,
		entry.Kind,
		entry.Reference,
		entry.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to insert ledger entry", "reference", entry.Reference, "kind", string(entry.Kind), "error", err)
		return nil, false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	existing, err := r.FindByReference(ctx, entry.Kind, entry.Reference)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByReference retrieves the entry recorded for kind and reference
func (r *LedgerRepository) FindByReference(ctx context.Context, kind ledger.EntryKind, reference string) (*ledger.Entry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE kind = $1 AND reference = $2
	`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, kind, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{Kind: kind, Reference: reference}
		}
		r.logger.Error("Failed to find ledger entry", "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return entry, nil
}

// Balance is the sum of every entry of the user
func (r *LedgerRepository) Balance(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1`

	var balance int64
	if err := r.querier.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		r.logger.Error("Failed to compute balance", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to compute balance: %w", err)
	}
	return balance, nil
}

// ListByUser returns entries newest first
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*ledger.Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}
	return entries, nil
}

// CountByUser returns the number of entries of the user
func (r *LedgerRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

// LockUser takes a transaction-scoped advisory lock keyed by the user id.
// Only meaningful on a repository bound with WithTx.
func (r *LedgerRepository) LockUser(ctx context.Context, userID string) error {
	if _, err := r.querier.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		r.logger.Error("Failed to lock user ledger", "user_id", userID, "error", err)
		return fmt.Errorf("failed to lock user ledger: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var e ledger.Entry
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &e.Reference, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
