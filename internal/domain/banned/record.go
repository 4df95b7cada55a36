package banned

import (
	"context"
	"time"

	"github.com/linebroker/internal/domain/shared"
)

// Record tracks a phone number that failed to deliver a code for a service.
type Record struct {
	PhoneNumber  string    `json:"phone_number" bson:"phone_number"`
	ServiceID    string    `json:"service_id" bson:"service_id"`
	AreaCode     string    `json:"area_code,omitempty" bson:"area_code,omitempty"`
	Carrier      string    `json:"carrier,omitempty" bson:"carrier,omitempty"`
	FailCount    int       `json:"fail_count" bson:"fail_count"`
	LastFailedAt time.Time `json:"last_failed_at" bson:"last_failed_at"`
}

// Failure describes one undelivered line
type Failure struct {
	PhoneNumber string
	ServiceID   string
	AreaCode    string
	Carrier     string
	At          time.Time
}

// Repository persists records. Records are never deleted.
type Repository interface {
	// RecordFailure upserts the record and increments fail_count atomically
	RecordFailure(ctx context.Context, failure Failure) (*Record, error)
	Get(ctx context.Context, serviceID, phoneNumber string) (*Record, error)
	TopOffenders(ctx context.Context, serviceID string, minFailures, limit int) ([]*Record, error)
}

// ErrRecordNotFound indicates the number has never failed for the service
type ErrRecordNotFound struct {
	ServiceID   string
	PhoneNumber string
}

func (e ErrRecordNotFound) Error() string {
	return "banned number record not found: " + e.ServiceID + "/" + e.PhoneNumber
}

func (e ErrRecordNotFound) Unwrap() error { return shared.ErrNotFound }
