package outbox

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/linebroker/internal/domain/shared"
)

// Repository stores lifecycle events next to the transaction rows that
// produced them. Create is always called through WithTx so the event commits
// with the state change.
type Repository interface {
	Create(ctx context.Context, message *Message) error
	// ClaimPending returns unpublished messages, oldest first, and hides them
	// from concurrent pollers for a while
	ClaimPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error
	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound is returned when a status update matches no row
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}

func (e ErrMessageNotFound) Unwrap() error { return shared.ErrNotFound }
