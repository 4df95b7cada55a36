package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

// State of a stored idempotency key
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Record is what the store keeps per key
type Record struct {
	RequestHash string          `json:"request_hash"`
	State       State           `json:"state"`
	StatusCode  int             `json:"status_code,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Store reserves keys and keeps completed responses for replay.
type Store interface {
	// Reserve claims key for a new request. When the key already exists the
	// stored record is returned and reserved is false.
	Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (existing *Record, reserved bool, err error)
	Complete(ctx context.Context, key string, record *Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}
