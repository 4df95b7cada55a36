package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/outbox"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/platform/metrics"
)

// Poller drains pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        EventPublisher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher EventPublisher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		logger:           logger.With("component", "outbox_poller"),
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start drains the outbox once and then on every tick until ctx is done. A
// full batch is followed by another one right away so a backlog after an
// archive outage clears without waiting for ticks.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting outbox poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox poller stopping")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := p.ProcessPending(ctx)
		if err != nil {
			p.logger.Error("Outbox batch failed", "error", err)
			return
		}
		if claimed < p.batchSize {
			return
		}
	}
}

// ProcessPending archives one claimed batch and returns how many messages it
// claimed. A message that keeps failing is parked as FAILED_TO_PUBLISH after
// maxRetryAttempts.
func (p *Poller) ProcessPending(ctx context.Context) (int, error) {
	messages, err := p.outboxRepo.ClaimPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	archived := 0
	for _, msg := range messages {
		if err := p.publisher.Publish(ctx, msg); err != nil {
			p.recordFailure(ctx, msg, err)
			continue
		}
		archived++
	}

	metrics.OutboxArchivedTotal.Add(float64(archived))
	p.logger.Info("Outbox batch processed", "claimed", len(messages), "archived", archived)
	return len(messages), nil
}

func (p *Poller) recordFailure(ctx context.Context, msg *outbox.Message, err error) {
	attempts := msg.Attempts + 1
	p.logger.Error("Failed to archive outbox message",
		"outbox_id", msg.ID,
		"transaction_id", msg.TransactionID,
		"attempt", attempts,
		"error", err,
	)

	if err := p.outboxRepo.IncrementAttempts(ctx, msg.ID); err != nil {
		p.logger.Error("Failed to count outbox attempt", "outbox_id", msg.ID, "error", err)
		return
	}
	if attempts < p.maxRetryAttempts {
		return
	}

	p.logger.Warn("Outbox message parked after max attempts",
		"outbox_id", msg.ID,
		"transaction_id", msg.TransactionID,
		"attempts", attempts,
	)
	if err := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); err != nil {
		p.logger.Error("Failed to park outbox message", "outbox_id", msg.ID, "error", err)
	}
}
