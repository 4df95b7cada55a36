package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/linebroker/internal/domain/payment"
)

const defaultDrainTimeout = 15 * time.Second

// WorkerPoolProcessingService bounds how many settlements hit the database
// at once. Callers still wait for their own result.
type WorkerPoolProcessingService struct {
	baseService  ProcessingService
	pool         *ants.Pool
	drainTimeout time.Duration
	logger       *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
	// DrainTimeout bounds how long Shutdown waits for running settlements
	DrainTimeout time.Duration
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	drainTimeout := config.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	return &WorkerPoolProcessingService{
		baseService:  baseService,
		pool:         pool,
		drainTimeout: drainTimeout,
		logger:       logger,
	}, nil
}

// ProcessSettlement runs the settlement on a pool worker and waits for it or
// for ctx. A worker that outlives ctx still finishes its database work. A
// panicking settlement is reported as an error so the message is retried
// rather than lost.
func (s *WorkerPoolProcessingService) ProcessSettlement(ctx context.Context, event *payment.SettlementEvent) error {
	eventCopy := *event
	resultChan := make(chan error, 1)

	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Settlement panicked", "charge_ref", eventCopy.ChargeRef, "panic", fmt.Sprint(r))
				resultChan <- fmt.Errorf("settlement %s panicked: %v", eventCopy.ChargeRef, r)
			}
		}()
		resultChan <- s.baseService.ProcessSettlement(ctx, &eventCopy)
	})
	if err != nil {
		s.logger.Error("Failed to submit settlement to worker pool", "charge_ref", event.ChargeRef, "error", err)
		return fmt.Errorf("failed to submit settlement %s: %w", event.ChargeRef, err)
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting settlements and waits up to the drain timeout
// for the running ones.
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	if err := s.pool.ReleaseTimeout(s.drainTimeout); err != nil {
		s.logger.Warn("Worker pool did not drain in time", "timeout", s.drainTimeout.String(), "error", err)
	}
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
