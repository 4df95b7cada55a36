package components

import (
	"log/slog"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/platform/messaging/producers"
	"github.com/linebroker/internal/transaction_processor/service"
)

// CreateProcessingService wires the settlement pipeline behind a worker pool
func CreateProcessingService(
	settler service.Settler,
	dlq producers.DeadLetterPublisher,
	logger *slog.Logger,
	cfg *config.Config,
) (service.ProcessingService, func(), error) {
	baseService := service.NewProcessingService(
		NewSettlementValidator(logger),
		settler,
		NewFailureRecorder(dlq, logger),
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size, DrainTimeout: cfg.WorkerPool.DrainTimeout},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService, workerPoolService.Shutdown, nil
}
