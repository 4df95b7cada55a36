package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/payment"
)

// MockProcessingService mocks the ProcessingService interface
type MockProcessingService struct {
	mock.Mock
}

func (m *MockProcessingService) ProcessSettlement(ctx context.Context, event *payment.SettlementEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestWorkerPoolProcessingService_ProcessSettlement(t *testing.T) {
	base := new(MockProcessingService)
	pool, err := NewWorkerPoolProcessingService(base, WorkerPoolConfig{Size: 2}, testLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	event := &payment.SettlementEvent{ChargeRef: "c-1", Status: payment.ChargeSettled}
	matches := mock.MatchedBy(func(e *payment.SettlementEvent) bool { return e.ChargeRef == "c-1" })

	base.On("ProcessSettlement", mock.Anything, matches).Return(nil).Once()
	assert.NoError(t, pool.ProcessSettlement(context.Background(), event))

	processErr := errors.New("processing error")
	base.On("ProcessSettlement", mock.Anything, matches).Return(processErr).Once()
	assert.ErrorIs(t, pool.ProcessSettlement(context.Background(), event), processErr)

	assert.Equal(t, 2, pool.Capacity())
	base.AssertExpectations(t)
}

// blockingService records the highest number of concurrent calls
type blockingService struct {
	inside  atomic.Int32
	maxSeen atomic.Int32
	release chan struct{}
}

func (b *blockingService) ProcessSettlement(context.Context, *payment.SettlementEvent) error {
	n := b.inside.Add(1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	<-b.release
	b.inside.Add(-1)
	return nil
}

func TestWorkerPoolProcessingService_BoundsConcurrency(t *testing.T) {
	base := &blockingService{release: make(chan struct{})}
	pool, err := NewWorkerPoolProcessingService(base, WorkerPoolConfig{Size: 2}, testLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pool.ProcessSettlement(context.Background(), &payment.SettlementEvent{ChargeRef: "c"}))
		}()
	}

	assert.Eventually(t, func() bool { return base.inside.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(base.release)
	wg.Wait()
	assert.Equal(t, int32(2), base.maxSeen.Load())
}

func TestWorkerPoolProcessingService_ContextCancelled(t *testing.T) {
	base := &blockingService{release: make(chan struct{})}
	pool, err := NewWorkerPoolProcessingService(base, WorkerPoolConfig{Size: 1}, testLogger())
	require.NoError(t, err)
	defer pool.Shutdown()
	defer close(base.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = pool.ProcessSettlement(ctx, &payment.SettlementEvent{ChargeRef: "c"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type panickingService struct{}

func (panickingService) ProcessSettlement(context.Context, *payment.SettlementEvent) error {
	panic("nil charge row")
}

func TestWorkerPoolProcessingService_PanicBecomesError(t *testing.T) {
	pool, err := NewWorkerPoolProcessingService(panickingService{}, WorkerPoolConfig{Size: 1}, testLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	err = pool.ProcessSettlement(context.Background(), &payment.SettlementEvent{ChargeRef: "c-9"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "settlement c-9 panicked")
}

func TestWorkerPoolProcessingService_ShutdownWaitsForRunning(t *testing.T) {
	base := &blockingService{release: make(chan struct{})}
	pool, err := NewWorkerPoolProcessingService(base, WorkerPoolConfig{Size: 1, DrainTimeout: time.Second}, testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- pool.ProcessSettlement(context.Background(), &payment.SettlementEvent{ChargeRef: "c"})
	}()
	require.Eventually(t, func() bool { return base.inside.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.AfterFunc(20*time.Millisecond, func() { close(base.release) })
	pool.Shutdown()

	assert.NoError(t, <-done)
	assert.Zero(t, base.inside.Load())
}
