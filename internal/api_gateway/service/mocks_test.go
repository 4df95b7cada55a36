package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	domain "github.com/linebroker/internal/domain/ledger"
	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/orchestrator"
	"github.com/linebroker/internal/engine/pricing"
	"github.com/linebroker/internal/engine/wallet"
)

type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Quote(ctx context.Context, cmd orchestrator.QuoteCommand) (*pricing.Quote, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.Quote), args.Error(1)
}

func (m *MockOrchestrator) CreateVerification(ctx context.Context, cmd orchestrator.CreateVerification) (*transaction.Transaction, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockOrchestrator) Status(ctx context.Context, userID string, id uuid.UUID) (*orchestrator.View, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.View), args.Error(1)
}

func (m *MockOrchestrator) AwaitCode(ctx context.Context, userID string, id uuid.UUID, maxWait time.Duration) (*orchestrator.View, error) {
	args := m.Called(ctx, userID, id, maxWait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.View), args.Error(1)
}

func (m *MockOrchestrator) Cancel(ctx context.Context, userID string, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockOrchestrator) Retry(ctx context.Context, cmd orchestrator.RetryCommand) (*transaction.Transaction, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockOrchestrator) Expire(ctx context.Context, t *transaction.Transaction) (*transaction.RetryDecision, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.RetryDecision), args.Error(1)
}

func (m *MockOrchestrator) CreateRental(ctx context.Context, cmd orchestrator.CreateRental) (*transaction.Transaction, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockOrchestrator) ExtendRental(ctx context.Context, cmd orchestrator.ExtendRental) (*transaction.Transaction, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockOrchestrator) ReleaseRental(ctx context.Context, userID string, id uuid.UUID) (*orchestrator.Release, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.Release), args.Error(1)
}

func (m *MockOrchestrator) SweepDue(ctx context.Context, now time.Time, batch int) (*orchestrator.SweepReport, error) {
	args := m.Called(ctx, now, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.SweepReport), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) entry(args mock.Arguments) (*domain.Entry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entry), args.Error(1)
}

func (m *MockLedger) Debit(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error) {
	return m.entry(m.Called(ctx, userID, amount, reference))
}

func (m *MockLedger) Credit(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error) {
	return m.entry(m.Called(ctx, userID, amount, reference))
}

func (m *MockLedger) Refund(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error) {
	return m.entry(m.Called(ctx, userID, amount, reference))
}

func (m *MockLedger) DebitTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error) {
	return m.entry(m.Called(ctx, tx, userID, amount, reference))
}

func (m *MockLedger) CreditTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error) {
	return m.entry(m.Called(ctx, tx, userID, amount, reference))
}

func (m *MockLedger) RefundTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error) {
	return m.entry(m.Called(ctx, tx, userID, amount, reference))
}

func (m *MockLedger) Balance(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) History(ctx context.Context, userID string, limit, offset int) (*ledger.HistoryPage, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.HistoryPage), args.Error(1)
}

type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) charge(args mock.Arguments) (*payment.Charge, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Charge), args.Error(1)
}

func (m *MockWallet) InitTopUp(ctx context.Context, userID string, amount int64) (*payment.Charge, error) {
	return m.charge(m.Called(ctx, userID, amount))
}

func (m *MockWallet) GetTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	return m.charge(m.Called(ctx, userID, reference))
}

func (m *MockWallet) VerifyTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	return m.charge(m.Called(ctx, userID, reference))
}

func (m *MockWallet) HandleWebhook(ctx context.Context, payload []byte, token string) (*payment.SettlementEvent, error) {
	args := m.Called(ctx, payload, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SettlementEvent), args.Error(1)
}

func (m *MockWallet) Settle(ctx context.Context, event payment.SettlementEvent) (*wallet.Settlement, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Settlement), args.Error(1)
}

type MockSettlementPublisher struct {
	mock.Mock
}

func (m *MockSettlementPublisher) PublishSettlement(ctx context.Context, event payment.SettlementEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockSettlementPublisher) Close() error {
	return m.Called().Error(0)
}
