package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/orchestrator"
)

func newTestTransaction(userID string) *transaction.Transaction {
	t := transaction.New(transaction.KindVerification, userID, "whatsapp", shared.CapabilitySMS, shared.PlanPayAsYouGo, time.Now().UTC())
	t.Status = transaction.StatusPending
	t.CostCharged = 100
	return t
}

func TestTransactionService_CreateVerification(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()
	cmd := orchestrator.CreateVerification{UserID: "user-1", ServiceID: "whatsapp", Capability: shared.CapabilitySMS}

	t.Run("Success", func(t *testing.T) {
		orch := new(MockOrchestrator)
		service := NewTransactionService(logger, orch, 30*time.Second)
		expected := newTestTransaction("user-1")
		orch.On("CreateVerification", ctx, cmd).Return(expected, nil)

		result, err := service.CreateVerification(ctx, cmd)

		require.NoError(t, err)
		assert.Equal(t, expected, result)
		orch.AssertExpectations(t)
	})

	t.Run("EngineErrorIsReturnedUnchanged", func(t *testing.T) {
		orch := new(MockOrchestrator)
		service := NewTransactionService(logger, orch, 30*time.Second)
		engineErr := &shared.InsufficientFundsError{UserID: "user-1", Balance: 10, Required: 100}
		orch.On("CreateVerification", ctx, cmd).Return(nil, engineErr)

		result, err := service.CreateVerification(ctx, cmd)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
		orch.AssertExpectations(t)
	})
}

func TestTransactionService_GetStatus(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()
	id := uuid.New()
	view := &orchestrator.View{Transaction: newTestTransaction("user-1")}

	t.Run("NoWaitUsesStatus", func(t *testing.T) {
		orch := new(MockOrchestrator)
		service := NewTransactionService(logger, orch, 30*time.Second)
		orch.On("Status", ctx, "user-1", id).Return(view, nil)

		result, err := service.GetStatus(ctx, "user-1", id, 0)

		require.NoError(t, err)
		assert.Same(t, view, result)
		orch.AssertNotCalled(t, "AwaitCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("WaitLongPolls", func(t *testing.T) {
		orch := new(MockOrchestrator)
		service := NewTransactionService(logger, orch, 30*time.Second)
		orch.On("AwaitCode", ctx, "user-1", id, 10*time.Second).Return(view, nil)

		result, err := service.GetStatus(ctx, "user-1", id, 10*time.Second)

		require.NoError(t, err)
		assert.Same(t, view, result)
		orch.AssertExpectations(t)
	})

	t.Run("WaitIsCappedAtMaxAwait", func(t *testing.T) {
		orch := new(MockOrchestrator)
		service := NewTransactionService(logger, orch, 30*time.Second)
		orch.On("AwaitCode", ctx, "user-1", id, 30*time.Second).Return(view, nil)

		_, err := service.GetStatus(ctx, "user-1", id, 2*time.Minute)

		require.NoError(t, err)
		orch.AssertExpectations(t)
	})
}

func TestTransactionService_Rentals(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	t.Run("ReleaseReturnsRefund", func(t *testing.T) {
		orch := new(MockOrchestrator)
		service := NewTransactionService(logger, orch, 30*time.Second)
		rental := newTestTransaction("user-1")
		rental.Kind = transaction.KindRental
		rental.Status = transaction.StatusReleased
		orch.On("ReleaseRental", ctx, "user-1", rental.ID).Return(&orchestrator.Release{Transaction: rental, Refunded: 200}, nil)

		release, err := service.ReleaseRental(ctx, "user-1", rental.ID)

		require.NoError(t, err)
		assert.Equal(t, int64(200), release.Refunded)
	})

	t.Run("ExtendError", func(t *testing.T) {
		orch := new(MockOrchestrator)
		service := NewTransactionService(logger, orch, 30*time.Second)
		cmd := orchestrator.ExtendRental{UserID: "user-1", TransactionID: uuid.New(), Days: 5}
		stateErr := &shared.InvalidStateError{Entity: "rental", ID: cmd.TransactionID.String(), State: "released", Operation: "extend"}
		orch.On("ExtendRental", ctx, cmd).Return(nil, stateErr)

		result, err := service.ExtendRental(ctx, cmd)

		assert.Nil(t, result)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})
}
