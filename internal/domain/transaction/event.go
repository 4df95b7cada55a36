package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle transition emitted through the outbox and archived.
type Event struct {
	ID            uuid.UUID `json:"id" bson:"_id"`
	TransactionID uuid.UUID `json:"transaction_id" bson:"transaction_id"`
	UserID        string    `json:"user_id" bson:"user_id"`
	Kind          Kind      `json:"kind" bson:"kind"`
	From          Status    `json:"from" bson:"from"`
	To            Status    `json:"to" bson:"to"`
	CostCharged   int64     `json:"cost_charged" bson:"cost_charged"`
	Reason        string    `json:"reason,omitempty" bson:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at" bson:"occurred_at"`
}

// NewEvent snapshots t after a transition from the given state.
func NewEvent(t *Transaction, from Status) *Event {
	return &Event{
		ID:            uuid.New(),
		TransactionID: t.ID,
		UserID:        t.UserID,
		Kind:          t.Kind,
		From:          from,
		To:            t.Status,
		CostCharged:   t.CostCharged,
		Reason:        t.FailureReason,
		OccurredAt:    t.UpdatedAt,
	}
}

// EventArchive keeps the permanent lifecycle history drained from the outbox.
type EventArchive interface {
	// Archive stores event. Archiving the same event twice is not an error.
	Archive(ctx context.Context, event *Event) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Event, error)
}
