package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/linebroker/internal/domain/shared"
)

// Repository defines transaction persistence operations
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// GetByRetryOf skips failed retries
	GetByRetryOf(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// Update uses optimistic locking on Version and bumps it on success
	Update(ctx context.Context, t *Transaction) error

	// CountCompleted counts the user's completed verifications since the given time
	CountCompleted(ctx context.Context, userID string, since time.Time) (int64, error)
	// ListDue returns transactions of kind in status whose expiry is at or before now
	ListDue(ctx context.Context, kind Kind, status Status, now time.Time, limit int) ([]*Transaction, error)
	// ListStale returns transactions stuck in status since before cutoff
	ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]*Transaction, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates missing transaction
type ErrTransactionNotFound struct {
	ID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.ID.String()
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	ID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for transaction: " + e.ID.String()
}

func (e ErrTransactionNotFound) Unwrap() error { return shared.ErrNotFound }

func (e ErrConcurrentModification) Unwrap() error { return shared.ErrConcurrentModification }
