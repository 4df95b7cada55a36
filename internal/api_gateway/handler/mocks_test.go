package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/linebroker/internal/api_gateway/middleware"
	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/ledger"
	"github.com/linebroker/internal/engine/orchestrator"
	"github.com/linebroker/internal/engine/pricing"
)

// testResponse decodes a Response with typed data
type testResponse[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) tx(args mock.Arguments) (*transaction.Transaction, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) CreateVerification(ctx context.Context, cmd orchestrator.CreateVerification) (*transaction.Transaction, error) {
	return m.tx(m.Called(ctx, cmd))
}

func (m *MockTransactionService) GetStatus(ctx context.Context, userID string, id uuid.UUID, wait time.Duration) (*orchestrator.View, error) {
	args := m.Called(ctx, userID, id, wait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.View), args.Error(1)
}

func (m *MockTransactionService) Cancel(ctx context.Context, userID string, id uuid.UUID) (*transaction.Transaction, error) {
	return m.tx(m.Called(ctx, userID, id))
}

func (m *MockTransactionService) Retry(ctx context.Context, cmd orchestrator.RetryCommand) (*transaction.Transaction, error) {
	return m.tx(m.Called(ctx, cmd))
}

func (m *MockTransactionService) Quote(ctx context.Context, cmd orchestrator.QuoteCommand) (*pricing.Quote, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.Quote), args.Error(1)
}

func (m *MockTransactionService) CreateRental(ctx context.Context, cmd orchestrator.CreateRental) (*transaction.Transaction, error) {
	return m.tx(m.Called(ctx, cmd))
}

func (m *MockTransactionService) ExtendRental(ctx context.Context, cmd orchestrator.ExtendRental) (*transaction.Transaction, error) {
	return m.tx(m.Called(ctx, cmd))
}

func (m *MockTransactionService) ReleaseRental(ctx context.Context, userID string, id uuid.UUID) (*orchestrator.Release, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.Release), args.Error(1)
}

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) charge(args mock.Arguments) (*payment.Charge, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Charge), args.Error(1)
}

func (m *MockWalletService) GetBalance(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWalletService) GetEntries(ctx context.Context, userID string, page, perPage int) (*ledger.HistoryPage, error) {
	args := m.Called(ctx, userID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.HistoryPage), args.Error(1)
}

func (m *MockWalletService) InitTopUp(ctx context.Context, userID string, amount int64) (*payment.Charge, error) {
	return m.charge(m.Called(ctx, userID, amount))
}

func (m *MockWalletService) GetTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	return m.charge(m.Called(ctx, userID, reference))
}

func (m *MockWalletService) VerifyTopUp(ctx context.Context, userID, reference string) (*payment.Charge, error) {
	return m.charge(m.Called(ctx, userID, reference))
}

func (m *MockWalletService) AcceptWebhook(ctx context.Context, payload []byte, token, correlationID string) (*payment.SettlementEvent, error) {
	args := m.Called(ctx, payload, token, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SettlementEvent), args.Error(1)
}

// authenticatedAs stands in for the JWT middleware
func authenticatedAs(userID string, plan shared.Plan) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Set(middleware.PlanKey, plan)
		c.Next()
	}
}
