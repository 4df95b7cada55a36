package postgres

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linebroker/internal/domain/outbox"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/platform/persistence"
)

// ClaimLease is how long a claimed message stays hidden from other pollers
const ClaimLease = 30 * time.Second

const outboxColumns = `id, event_id, transaction_id, user_id, payload, status, attempts, created_at, last_attempt_at`

// OutboxRepository keeps lifecycle events until the poller archives them
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
	now     func() time.Time
}

func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
		now:     time.Now,
	}
}

// WithTx binds the repository to tx so the event commits with the
// transaction row it describes
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
		now:     r.now,
	}
}

func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	err := r.querier.QueryRow(ctx, `
		INSERT INTO transaction_outbox (event_id, transaction_id, user_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		message.EventID,
		message.TransactionID,
		message.UserID,
		message.Payload,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		r.logger.Error("Failed to create outbox message",
			"transaction_id", message.TransactionID.String(),
			"event_id", message.EventID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// ClaimPending stamps up to limit pending messages and returns them oldest
// first. Rows another poller holds are skipped, and a claim expires after
// ClaimLease so a crashed poller's batch is picked up again.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	now := r.now()
	rows, err := r.querier.Query(ctx, `
		WITH claimable AS (
			SELECT id FROM transaction_outbox
			WHERE status = $1 AND (last_attempt_at IS NULL OR last_attempt_at < $2)
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE transaction_outbox o SET last_attempt_at = $4
		FROM claimable WHERE o.id = claimable.id
		RETURNING o.`+outboxColumns,
		shared.OutboxStatusPending, now.Add(-ClaimLease), limit, now,
	)
	if err != nil {
		r.logger.Error("Failed to claim outbox messages", "error", err)
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox messages: %w", err)
	}
	// RETURNING does not keep the CTE order
	sortByCreation(messages)
	return messages, nil
}

func scanMessage(row pgx.CollectableRow) (*outbox.Message, error) {
	var m outbox.Message
	err := row.Scan(
		&m.ID,
		&m.EventID,
		&m.TransactionID,
		&m.UserID,
		&m.Payload,
		&m.Status,
		&m.Attempts,
		&m.CreatedAt,
		&m.LastAttemptAt,
	)
	return &m, err
}

func sortByCreation(messages []*outbox.Message) {
	slices.SortFunc(messages, func(a, b *outbox.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return r.touch(ctx, id, "status", `UPDATE transaction_outbox SET status = $1, last_attempt_at = $2 WHERE id = $3`,
		status, r.now(), id)
}

// IncrementAttempts counts a failed archive attempt. The attempt time doubles
// as a fresh claim, so the message waits one lease before the next try.
func (r *OutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	return r.touch(ctx, id, "attempts", `UPDATE transaction_outbox SET attempts = attempts + 1, last_attempt_at = $1 WHERE id = $2`,
		r.now(), id)
}

func (r *OutboxRepository) touch(ctx context.Context, id int64, what, query string, args ...any) error {
	result, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update outbox message", "id", id, "field", what, "error", err)
		return fmt.Errorf("failed to update outbox message %s: %w", what, err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}
