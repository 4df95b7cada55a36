package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies a balance adjustment
type EntryKind string

const (
	KindDebit  EntryKind = "debit"
	KindCredit EntryKind = "credit"
	KindRefund EntryKind = "refund"
)

// Entry is an immutable signed balance adjustment. Debits carry a negative amount.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"` // Stored in cents/minor units
	Kind      EntryKind `json:"kind"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntry builds an entry with the sign derived from kind.
func NewEntry(userID string, amount int64, kind EntryKind, reference string) *Entry {
	signed := amount
	if kind == KindDebit {
		signed = -amount
	}
	return &Entry{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    signed,
		Kind:      kind,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}
}

// Magnitude returns the unsigned amount of the entry.
func (e *Entry) Magnitude() int64 {
	if e.Amount < 0 {
		return -e.Amount
	}
	return e.Amount
}
