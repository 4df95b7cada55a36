// Package banned decides which phone numbers must not be handed out again for
// a service after repeated delivery failures.
package banned

import (
	"context"
	"errors"
	"log/slog"

	domain "github.com/linebroker/internal/domain/banned"
	"github.com/linebroker/internal/domain/shared"
)

// Tracker records failures and answers ban queries
type Tracker interface {
	RecordFailure(ctx context.Context, failure domain.Failure) (*domain.Record, error)
	IsBanned(ctx context.Context, serviceID, phoneNumber string) (bool, error)
	Report(ctx context.Context, serviceID string, limit int) ([]*domain.Record, error)
}

type tracker struct {
	repo      domain.Repository
	threshold int
	logger    *slog.Logger
}

// NewTracker creates a tracker that bans a number once its fail count reaches threshold
func NewTracker(logger *slog.Logger, repo domain.Repository, threshold int) Tracker {
	if threshold < 1 {
		threshold = 1
	}
	return &tracker{
		repo:      repo,
		threshold: threshold,
		logger:    logger.With("component", "banned_tracker"),
	}
}

func (t *tracker) RecordFailure(ctx context.Context, failure domain.Failure) (*domain.Record, error) {
	if failure.PhoneNumber == "" || failure.ServiceID == "" {
		return nil, shared.NewValidationError("phone_number", "service and number are required")
	}
	rec, err := t.repo.RecordFailure(ctx, failure)
	if err != nil {
		return nil, err
	}
	if rec.FailCount == t.threshold {
		t.logger.Warn("Number banned for service",
			"service_id", rec.ServiceID,
			"phone_number", rec.PhoneNumber,
			"fail_count", rec.FailCount,
		)
	}
	return rec, nil
}

func (t *tracker) IsBanned(ctx context.Context, serviceID, phoneNumber string) (bool, error) {
	rec, err := t.repo.Get(ctx, serviceID, phoneNumber)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.FailCount >= t.threshold, nil
}

// Report lists banned numbers, worst first
func (t *tracker) Report(ctx context.Context, serviceID string, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return t.repo.TopOffenders(ctx, serviceID, t.threshold, limit)
}
