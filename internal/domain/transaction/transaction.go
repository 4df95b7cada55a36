package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/linebroker/internal/domain/shared"
)

// Kind distinguishes one-shot verifications from line rentals
type Kind string

const (
	KindVerification Kind = "verification"
	KindRental       Kind = "rental"
)

// Status is a lifecycle state
type Status string

const (
	StatusRequested    Status = "requested"
	StatusProvisioning Status = "provisioning"
	StatusPending      Status = "pending"
	StatusCompleted    Status = "completed"
	StatusExpired      Status = "expired"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
	StatusActive       Status = "active"
	StatusReleased     Status = "released"
)

// RetryOption is one of the paths offered after a verification expires
type RetryOption string

const (
	RetryReuseSameLine  RetryOption = "reuse_same_line"
	RetryNewLine        RetryOption = "new_line"
	RetryUpgradeToVoice RetryOption = "upgrade_to_voice"
)

// Valid reports whether o is a known retry option
func (o RetryOption) Valid() bool {
	switch o {
	case RetryReuseSameLine, RetryNewLine, RetryUpgradeToVoice:
		return true
	}
	return false
}

var transitions = map[Kind]map[Status][]Status{
	KindVerification: {
		StatusRequested:    {StatusProvisioning, StatusFailed},
		StatusProvisioning: {StatusPending, StatusFailed},
		StatusPending:      {StatusCompleted, StatusExpired, StatusCancelled},
	},
	KindRental: {
		StatusRequested:    {StatusProvisioning, StatusFailed},
		StatusProvisioning: {StatusActive, StatusFailed},
		StatusActive:       {StatusActive, StatusReleased, StatusExpired},
	},
}

// Transaction is a verification or a rental tracked through its lifecycle.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	UserID        string            `json:"user_id"`
	Kind          Kind              `json:"kind"`
	ServiceID     string            `json:"service_id"`
	Capability    shared.Capability `json:"capability"`
	Plan          shared.Plan       `json:"plan"`
	AreaCode      string            `json:"area_code,omitempty"`
	Carrier       string            `json:"carrier,omitempty"`
	Addons        []string          `json:"addons,omitempty"`
	LineRef       string            `json:"line_ref,omitempty"`
	PhoneNumber   string            `json:"phone_number,omitempty"`
	Status        Status            `json:"status"`
	CostCharged   int64             `json:"cost_charged"` // Stored in cents/minor units
	RentalDays    int               `json:"rental_days,omitempty"`
	Extensions    int               `json:"extensions,omitempty"`
	Code          string            `json:"code,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	RetryOf       *uuid.UUID        `json:"retry_of,omitempty"`
	Version       int               `json:"version"` // For optimistic locking
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// New creates a transaction in the requested state.
func New(kind Kind, userID, serviceID string, capability shared.Capability, plan shared.Plan, now time.Time) *Transaction {
	return &Transaction{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		ServiceID:  serviceID,
		Capability: capability,
		Plan:       plan,
		Status:     StatusRequested,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanTransition reports whether the state machine allows moving to next.
func (t *Transaction) CanTransition(next Status) bool {
	for _, allowed := range transitions[t.Kind][t.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the transaction to next or returns an InvalidStateError.
func (t *Transaction) Transition(next Status, now time.Time) error {
	if !t.CanTransition(next) {
		return &shared.InvalidStateError{
			Entity:    string(t.Kind),
			ID:        t.ID.String(),
			State:     string(t.Status),
			Operation: "move to " + string(next),
		}
	}
	t.Status = next
	t.UpdatedAt = now
	if next.Terminal() {
		t.CompletedAt = &now
	}
	return nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelled, StatusFailed, StatusReleased:
		return true
	}
	return false
}

// AssignLine records the provider line and starts the clock.
func (t *Transaction) AssignLine(ref, phone string, now time.Time, ttl time.Duration) {
	t.LineRef = ref
	t.PhoneNumber = phone
	expires := now.Add(ttl)
	t.StartedAt = &now
	t.ExpiresAt = &expires
}

// Due reports whether the expiry deadline has been reached.
func (t *Transaction) Due(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Fail moves the transaction to failed with a reason.
func (t *Transaction) Fail(reason string, now time.Time) error {
	if err := t.Transition(StatusFailed, now); err != nil {
		return err
	}
	t.FailureReason = reason
	return nil
}

// Extend pushes the rental expiry by days without touching elapsed time.
func (t *Transaction) Extend(days int, cost int64, now time.Time) error {
	if t.Kind != KindRental {
		return &shared.InvalidStateError{Entity: string(t.Kind), ID: t.ID.String(), State: string(t.Status), Operation: "extend"}
	}
	if err := t.Transition(StatusActive, now); err != nil {
		return err
	}
	expires := t.ExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
	t.ExpiresAt = &expires
	t.RentalDays += days
	t.CostCharged += cost
	t.Extensions++
	return nil
}

// RetryDecision is surfaced to the caller when a verification expires.
type RetryDecision struct {
	TransactionID uuid.UUID     `json:"transaction_id"`
	Refunded      int64         `json:"refunded"`
	Options       []RetryOption `json:"options"`
}
