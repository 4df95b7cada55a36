package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linebroker/internal/domain/outbox"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
)

// EventPublisher moves one outbox message to its destination
type EventPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// ArchivePublisher copies lifecycle events into the permanent event archive
type ArchivePublisher struct {
	outboxRepo outbox.Repository
	archive    transaction.EventArchive
	logger     *slog.Logger
}

// NewArchivePublisher creates a new publisher
func NewArchivePublisher(
	outboxRepo outbox.Repository,
	archive transaction.EventArchive,
	logger *slog.Logger,
) EventPublisher {
	return &ArchivePublisher{
		outboxRepo: outboxRepo,
		archive:    archive,
		logger:     logger,
	}
}

// Publish archives the event and marks the message processed. The archive
// ignores duplicates, so a crash between the two steps only re-archives.
func (p *ArchivePublisher) Publish(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to unmarshal lifecycle event from outbox payload",
			"outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark outbox message FAILED_TO_PUBLISH", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	if err := p.archive.Archive(ctx, event); err != nil {
		return fmt.Errorf("failed to archive event %s: %w", event.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		return fmt.Errorf("event %s archived, but failed to mark outbox %d as PROCESSED: %w", event.ID, message.ID, err)
	}

	p.logger.Debug("Archived lifecycle event",
		"outbox_id", message.ID,
		"transaction_id", message.TransactionID,
		"from", string(event.From),
		"to", string(event.To),
	)
	return nil
}
