package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/orchestrator"
	"github.com/linebroker/internal/engine/pricing"
)

// TransactionServiceImpl implements the TransactionService interface on top
// of the orchestrator
type TransactionServiceImpl struct {
	orchestrator orchestrator.Orchestrator
	maxAwait     time.Duration
	logger       *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(logger *slog.Logger, orch orchestrator.Orchestrator, maxAwait time.Duration) TransactionService {
	return &TransactionServiceImpl{
		orchestrator: orch,
		maxAwait:     maxAwait,
		logger:       logger.With("component", "transaction_service"),
	}
}

// CreateVerification starts a verification and logs the outcome
func (s *TransactionServiceImpl) CreateVerification(ctx context.Context, cmd orchestrator.CreateVerification) (*transaction.Transaction, error) {
	t, err := s.orchestrator.CreateVerification(ctx, cmd)
	if err != nil {
		s.logger.Warn("Verification not created",
			"user_id", cmd.UserID,
			"service_id", cmd.ServiceID,
			"capability", string(cmd.Capability),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Verification created",
		"transaction_id", t.ID,
		"user_id", t.UserID,
		"service_id", t.ServiceID,
		"cost", t.CostCharged,
	)
	return t, nil
}

// GetStatus returns the current view, long-polling when wait is positive
func (s *TransactionServiceImpl) GetStatus(ctx context.Context, userID string, id uuid.UUID, wait time.Duration) (*orchestrator.View, error) {
	if wait <= 0 {
		return s.orchestrator.Status(ctx, userID, id)
	}
	if wait > s.maxAwait {
		wait = s.maxAwait
	}
	return s.orchestrator.AwaitCode(ctx, userID, id, wait)
}

func (s *TransactionServiceImpl) Cancel(ctx context.Context, userID string, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := s.orchestrator.Cancel(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Verification cancelled", "transaction_id", id, "user_id", userID, "status", string(t.Status))
	return t, nil
}

func (s *TransactionServiceImpl) Retry(ctx context.Context, cmd orchestrator.RetryCommand) (*transaction.Transaction, error) {
	t, err := s.orchestrator.Retry(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Verification retried",
		"transaction_id", t.ID,
		"retry_of", cmd.TransactionID,
		"option", string(cmd.Option),
		"cost", t.CostCharged,
	)
	return t, nil
}

func (s *TransactionServiceImpl) Quote(ctx context.Context, cmd orchestrator.QuoteCommand) (*pricing.Quote, error) {
	return s.orchestrator.Quote(ctx, cmd)
}

// CreateRental starts a rental and logs the outcome
func (s *TransactionServiceImpl) CreateRental(ctx context.Context, cmd orchestrator.CreateRental) (*transaction.Transaction, error) {
	t, err := s.orchestrator.CreateRental(ctx, cmd)
	if err != nil {
		s.logger.Warn("Rental not created",
			"user_id", cmd.UserID,
			"service_id", cmd.ServiceID,
			"days", cmd.Days,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Rental created",
		"transaction_id", t.ID,
		"user_id", t.UserID,
		"days", t.RentalDays,
		"cost", t.CostCharged,
	)
	return t, nil
}

func (s *TransactionServiceImpl) ExtendRental(ctx context.Context, cmd orchestrator.ExtendRental) (*transaction.Transaction, error) {
	t, err := s.orchestrator.ExtendRental(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Rental extended", "transaction_id", t.ID, "days", cmd.Days, "total_days", t.RentalDays)
	return t, nil
}

func (s *TransactionServiceImpl) ReleaseRental(ctx context.Context, userID string, id uuid.UUID) (*orchestrator.Release, error) {
	release, err := s.orchestrator.ReleaseRental(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Rental released", "transaction_id", id, "user_id", userID, "refunded", release.Refunded)
	return release, nil
}
