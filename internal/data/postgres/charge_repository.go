package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/platform/persistence"
)

const chargeColumns = `reference, user_id, amount, currency, status, redirect_url, created_at, updated_at, settled_at`

// ChargeRepository implements the payment.Repository interface for PostgreSQL
type ChargeRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
	now     func() time.Time
}

// NewChargeRepository creates a new PostgreSQL charge repository
func NewChargeRepository(logger *slog.Logger, db *persistence.PostgresDB) payment.Repository {
	return &ChargeRepository{
		querier: db.Pool(),
		logger:  logger,
		now:     time.Now,
	}
}

func (r *ChargeRepository) WithTx(tx pgx.Tx) payment.Repository {
	return &ChargeRepository{
		querier: tx,
		logger:  r.logger,
		now:     r.now,
	}
}

// Create stores a new charge
func (r *ChargeRepository) Create(ctx context.Context, c *payment.Charge) error {
	query := `
		INSERT INTO charges (` + chargeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		c.Reference, c.UserID, c.Amount, c.Currency, c.Status, c.RedirectURL, c.CreatedAt, c.UpdatedAt, c.SettledAt,
	)
	if err != nil {
		r.logger.Error("Failed to create charge", "reference", c.Reference, "error", err)
		return fmt.Errorf("failed to create charge: %w", err)
	}
	return nil
}

// GetByReference retrieves a charge by its reference
func (r *ChargeRepository) GetByReference(ctx context.Context, reference string) (*payment.Charge, error) {
	return r.get(ctx, `SELECT `+chargeColumns+` FROM charges WHERE reference = $1`, reference, "get")
}

// LockForUpdate obtains a row lock on the charge for the surrounding transaction
func (r *ChargeRepository) LockForUpdate(ctx context.Context, reference string) (*payment.Charge, error) {
	return r.get(ctx, `SELECT `+chargeColumns+` FROM charges WHERE reference = $1 FOR UPDATE`, reference, "lock")
}

func (r *ChargeRepository) get(ctx context.Context, query, reference, op string) (*payment.Charge, error) {
	var c payment.Charge
	err := r.querier.QueryRow(ctx, query, reference).Scan(
		&c.Reference, &c.UserID, &c.Amount, &c.Currency, &c.Status, &c.RedirectURL, &c.CreatedAt, &c.UpdatedAt, &c.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrChargeNotFound{Reference: reference}
		}
		r.logger.Error("Failed to read charge", "op", op, "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to %s charge: %w", op, err)
	}
	return &c, nil
}

// UpdateStatus sets the status. An empty redirectURL keeps the stored one.
func (r *ChargeRepository) UpdateStatus(ctx context.Context, reference string, status payment.ChargeStatus, redirectURL string) error {
	query := `
		UPDATE charges
		SET status = $1,
			redirect_url = COALESCE(NULLIF($2, ''), redirect_url),
			updated_at = $3,
			settled_at = CASE WHEN $1 = 'settled' THEN $3 ELSE settled_at END
		WHERE reference = $4
	`

	result, err := r.querier.Exec(ctx, query, status, redirectURL, r.now().UTC(), reference)
	if err != nil {
		r.logger.Error("Failed to update charge status", "reference", reference, "status", string(status), "error", err)
		return fmt.Errorf("failed to update charge status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return payment.ErrChargeNotFound{Reference: reference}
	}
	return nil
}
