package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/linebroker/internal/domain/shared"
)

// ChargeStatus is the settlement state of a top-up
type ChargeStatus string

const (
	ChargePending ChargeStatus = "pending"
	ChargeSettled ChargeStatus = "settled"
	ChargeFailed  ChargeStatus = "failed"
)

// Charge is a wallet top-up initiated at the payment gateway
type Charge struct {
	Reference   string       `json:"reference"`
	UserID      string       `json:"user_id"`
	Amount      int64        `json:"amount"` // Stored in cents/minor units
	Currency    string       `json:"currency"`
	Status      ChargeStatus `json:"status"`
	RedirectURL string       `json:"redirect_url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	SettledAt   *time.Time   `json:"settled_at,omitempty"`
}

// NewCharge creates a pending charge whose reference doubles as the gateway idempotency key
func NewCharge(userID string, amount int64, currency string) *Charge {
	now := time.Now().UTC()
	return &Charge{
		Reference: uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		Status:    ChargePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LedgerReference is the credit reference used when the charge settles
func (c *Charge) LedgerReference() string {
	return "topup:" + c.Reference
}

// Repository defines charge persistence operations
type Repository interface {
	Create(ctx context.Context, charge *Charge) error
	GetByReference(ctx context.Context, reference string) (*Charge, error)
	// LockForUpdate acquires a row lock for settlement processing
	LockForUpdate(ctx context.Context, reference string) (*Charge, error)
	UpdateStatus(ctx context.Context, reference string, status ChargeStatus, redirectURL string) error
	WithTx(tx pgx.Tx) Repository
}

// ErrChargeNotFound indicates missing charge
type ErrChargeNotFound struct {
	Reference string
}

func (e ErrChargeNotFound) Error() string {
	return "charge not found: " + e.Reference
}

func (e ErrChargeNotFound) Unwrap() error { return shared.ErrNotFound }
