package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/linebroker/internal/domain/shared"
)

// Repository manages append-only ledger entry persistence
type Repository interface {
	// Insert appends an entry. When an entry with the same kind and reference
	// already exists it is returned instead and inserted is false.
	Insert(ctx context.Context, entry *Entry) (stored *Entry, inserted bool, err error)
	FindByReference(ctx context.Context, kind EntryKind, reference string) (*Entry, error)
	Balance(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Entry, error)
	CountByUser(ctx context.Context, userID string) (int64, error)

	// LockUser serializes balance mutations for one user until the surrounding
	// transaction ends.
	LockUser(ctx context.Context, userID string) error
	WithTx(tx pgx.Tx) Repository
}

// ErrEntryNotFound indicates missing ledger entry
type ErrEntryNotFound struct {
	Kind      EntryKind
	Reference string
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + string(e.Kind) + "/" + e.Reference
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	// An empty target reference matches any ErrEntryNotFound
	if t.Reference == "" {
		return true
	}
	return e.Kind == t.Kind && e.Reference == t.Reference
}

func (e ErrEntryNotFound) Unwrap() error { return shared.ErrNotFound }
