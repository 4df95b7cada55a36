package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/wallet"
	"github.com/linebroker/internal/platform/messaging/producers"
)

// WalletServiceImpl implements the WalletService interface
type WalletServiceImpl struct {
	ledger    ledger.Service
	wallet    wallet.Service
	publisher producers.SettlementPublisher
	logger    *slog.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(logger *slog.Logger, ledgerSvc ledger.Service, walletSvc wallet.Service, publisher producers.SettlementPublisher) WalletService {
	return &WalletServiceImpl{
		ledger:    ledgerSvc,
		wallet:    walletSvc,
		publisher: publisher,
		logger:    logger.With("component", "wallet_service"),
	}
}

func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// GetEntries translates page based pagination to the ledger's limit and offset
func (s *WalletServiceImpl) GetEntries(ctx context.Context, userID string, page, perPage int) (*ledger.HistoryPage, error) {
	if perPage > ledger.MaxPageSize {
		perPage = ledger.MaxPageSize
	}
	offset := (page - 1) * perPage
	return s.ledger.History(ctx, userID, perPage, offset)
}

func (s *WalletServiceImpl) InitTopUp(ctx context.Context, userID string, amount int64) (*payment.Charge, error) {
	charge, err := s.wallet.InitTopUp(ctx, userID, amount)
	if err != nil {
		s.logger.Warn("Top-up not started", "user_id", userID, "amount", amount, "error", err)
		return nil, err
	}
	s.logger.Info("Top-up started", "user_id", userID, "reference", charge.Reference, "amount", amount)
	return charge, nil
}

func (s *WalletServiceImpl) GetTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	return s.wallet.GetTopUp(ctx, userID, reference)
}

func (s *WalletServiceImpl) VerifyTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	return s.wallet.VerifyTopUp(ctx, userID, reference)
}

// AcceptWebhook verifies the notification and hands it to the settlement topic.
// A publish failure is returned so the gateway redelivers.
func (s *WalletServiceImpl) AcceptWebhook(ctx context.Context, payload []byte, token, correlationID string) (*payment.SettlementEvent, error) {
	event, err := s.wallet.HandleWebhook(ctx, payload, token)
	if err != nil {
		s.logger.Warn("Webhook rejected", "error", err)
		return nil, err
	}
	event.CorrelationID = correlationID

	if err := s.publisher.PublishSettlement(ctx, *event); err != nil {
		s.logger.Error("Failed to publish settlement event",
			"charge_ref", event.ChargeRef,
			"status", string(event.Status),
			"error", err,
		)
		return nil, fmt.Errorf("failed to publish settlement event: %w", err)
	}

	s.logger.Info("Settlement event published",
		"charge_ref", event.ChargeRef,
		"status", string(event.Status),
		"amount", event.Amount,
	)
	return event, nil
}
