package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/ledger"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
)

const day = 24 * time.Hour

func weekRental(userID string) CreateRental {
	return CreateRental{UserID: userID, ServiceID: "whatsapp", Capability: shared.CapabilitySMS, Days: 7}
}

func TestCreateRental(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "user-1", 1000)

	rental, err := h.o.CreateRental(context.Background(), weekRental("user-1"))

	require.NoError(t, err)
	assert.Equal(t, transaction.KindRental, rental.Kind)
	assert.Equal(t, transaction.StatusActive, rental.Status)
	assert.Equal(t, int64(500), rental.CostCharged)
	assert.Equal(t, 7, rental.RentalDays)
	assert.Equal(t, h.clock.Now().Add(7*day), *rental.ExpiresAt)
	assert.Equal(t, int64(500), h.balance(t, "user-1"))

	last := h.provider.acquired[len(h.provider.acquired)-1]
	assert.True(t, last.Rental)
	assert.Equal(t, 7, last.RentalDays)
}

func TestCreateRental_DaysOutOfRange(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "user-1", 100000)

	for _, days := range []int{0, 91} {
		cmd := weekRental("user-1")
		cmd.Days = days
		_, err := h.o.CreateRental(context.Background(), cmd)
		assert.ErrorIs(t, err, shared.ErrValidation, "days=%d", days)
	}
}

func TestReleaseRental_ProratesRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "user-1", 1000)
	rental, err := h.o.CreateRental(ctx, weekRental("user-1"))
	require.NoError(t, err)

	h.clock.Advance(7 * day / 2)
	release, err := h.o.ReleaseRental(ctx, "user-1", rental.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(200), release.Refunded, "0.5 x 5.00 x 0.8")
	assert.Equal(t, transaction.StatusReleased, release.Transaction.Status)
	assert.Equal(t, int64(700), h.balance(t, "user-1"))
	assert.Contains(t, h.provider.cancelled, rental.LineRef)

	_, err = h.o.ReleaseRental(ctx, "user-1", rental.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReleaseRental_VerificationRejected(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "user-1", 500)
	tx, err := h.o.CreateVerification(context.Background(), whatsappSMS("user-1"))
	require.NoError(t, err)

	_, err = h.o.ReleaseRental(context.Background(), "user-1", tx.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestExtendRental(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "user-1", 1000)
	rental, err := h.o.CreateRental(ctx, weekRental("user-1"))
	require.NoError(t, err)
	originalExpiry := *rental.ExpiresAt

	h.clock.Advance(3 * day)
	extended, err := h.o.ExtendRental(ctx, ExtendRental{UserID: "user-1", TransactionID: rental.ID, Days: 2})

	require.NoError(t, err)
	assert.Equal(t, originalExpiry.Add(2*day), *extended.ExpiresAt)
	assert.Equal(t, *rental.StartedAt, *extended.StartedAt)
	assert.Equal(t, int64(700), extended.CostCharged)
	assert.Equal(t, 9, extended.RentalDays)
	assert.Equal(t, 1, extended.Extensions)
	assert.Equal(t, int64(300), h.balance(t, "user-1"))

	entries := h.store.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, ledger.KindDebit, last.Kind)
	assert.Equal(t, rental.ID.String()+":extend:1", last.Reference)

	t.Run("InsufficientFundsLeavesRentalUntouched", func(t *testing.T) {
		_, err := h.o.ExtendRental(ctx, ExtendRental{UserID: "user-1", TransactionID: rental.ID, Days: 7})
		assert.ErrorIs(t, err, shared.ErrInsufficientFunds)

		stored, err := h.store.TransactionRepo().GetByID(ctx, rental.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, stored.RentalDays)
		assert.Equal(t, int64(300), h.balance(t, "user-1"))
	})

	t.Run("CannotExceedMaximum", func(t *testing.T) {
		_, err := h.o.ExtendRental(ctx, ExtendRental{UserID: "user-1", TransactionID: rental.ID, Days: 85})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("ReleaseAfterExtensionUsesFullPeriod", func(t *testing.T) {
		release, err := h.o.ReleaseRental(ctx, "user-1", rental.ID)
		require.NoError(t, err)
		// 6 of 9 days unused: 700 x 6/9 x 0.8
		assert.Equal(t, int64(373), release.Refunded)
	})
}

func TestExtendRental_AppliesVolumeDiscount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		done := transaction.New(transaction.KindVerification, "user-1", "whatsapp", shared.CapabilitySMS, shared.PlanPayAsYouGo, h.clock.Now())
		done.Status = transaction.StatusCompleted
		completedAt := h.clock.Now()
		done.CompletedAt = &completedAt
		require.NoError(t, h.store.TransactionRepo().Create(ctx, done))
	}
	h.fund(t, "user-1", 1000)

	rental, err := h.o.CreateRental(ctx, weekRental("user-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(475), rental.CostCharged, "5% off the 500 week price")

	extended, err := h.o.ExtendRental(ctx, ExtendRental{UserID: "user-1", TransactionID: rental.ID, Days: 2})

	require.NoError(t, err)
	assert.Equal(t, int64(475+190), extended.CostCharged, "extension days get the same discount")
	assert.Equal(t, int64(1000-475-190), h.balance(t, "user-1"))
}

func TestExtendRental_PastExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "user-1", 1000)
	rental, err := h.o.CreateRental(ctx, weekRental("user-1"))
	require.NoError(t, err)

	h.clock.Advance(8 * day)
	_, err = h.o.ExtendRental(ctx, ExtendRental{UserID: "user-1", TransactionID: rental.ID, Days: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestProratedRefund(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * day)

	testCases := []struct {
		name     string
		now      time.Time
		cost     int64
		factor   int64
		expected int64
	}{
		{"Half", start.Add(7 * day / 2), 500, 8000, 200},
		{"Immediately", start, 500, 8000, 400},
		{"AtExpiry", end, 500, 8000, 0},
		{"AfterExpiry", end.Add(time.Hour), 500, 8000, 0},
		{"BeforeStartIsCapped", start.Add(-time.Hour), 500, 8000, 400},
		{"Exact", start.Add(day), 7, 5000, 3},
		{"HalfRoundsUp", start.Add(7 * day / 2), 5, 10000, 3},
		{"BelowHalfRoundsDown", start.Add(7 * day / 2), 5, 5000, 1},
		{"ZeroCost", start, 0, 8000, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ProratedRefund(tc.cost, start, end, tc.now, tc.factor))
		})
	}
}
