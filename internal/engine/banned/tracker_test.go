package banned

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/linebroker/internal/domain/banned"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/testutil/memstore"
)

func newTracker(threshold int) (Tracker, *memstore.Banned) {
	repo := memstore.NewBanned()
	return NewTracker(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, threshold), repo
}

func TestTracker_BansAtThreshold(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(3)
	failure := domain.Failure{PhoneNumber: "+15550100", ServiceID: "whatsapp", Carrier: "acme", At: time.Now()}

	for i := 1; i <= 3; i++ {
		rec, err := tracker.RecordFailure(ctx, failure)
		require.NoError(t, err)
		assert.Equal(t, i, rec.FailCount)

		isBanned, err := tracker.IsBanned(ctx, "whatsapp", "+15550100")
		require.NoError(t, err)
		assert.Equal(t, i >= 3, isBanned, "after %d failures", i)
	}

	other, err := tracker.IsBanned(ctx, "telegram", "+15550100")
	require.NoError(t, err)
	assert.False(t, other, "bans are per service")
}

func TestTracker_UnknownNumberIsNotBanned(t *testing.T) {
	tracker, _ := newTracker(1)
	isBanned, err := tracker.IsBanned(context.Background(), "whatsapp", "+1")
	require.NoError(t, err)
	assert.False(t, isBanned)
}

func TestTracker_Report(t *testing.T) {
	tracker, repo := newTracker(2)
	repo.Seed(domain.Record{ServiceID: "google", PhoneNumber: "+1", FailCount: 5})
	repo.Seed(domain.Record{ServiceID: "google", PhoneNumber: "+2", FailCount: 1})
	repo.Seed(domain.Record{ServiceID: "google", PhoneNumber: "+3", FailCount: 2})

	report, err := tracker.Report(context.Background(), "google", 0)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, "+1", report[0].PhoneNumber)
}

func TestTracker_RecordFailureErrors(t *testing.T) {
	tracker, repo := newTracker(2)

	_, err := tracker.RecordFailure(context.Background(), domain.Failure{ServiceID: "x"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	repo.Err = errors.New("mongo down")
	_, err = tracker.RecordFailure(context.Background(), domain.Failure{ServiceID: "x", PhoneNumber: "+1"})
	assert.EqualError(t, err, "mongo down")
}
