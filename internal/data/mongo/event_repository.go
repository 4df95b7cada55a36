package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linebroker/internal/domain/transaction"
)

const (
	// EventCollectionName is the name of the lifecycle event archive in MongoDB
	EventCollectionName = "transaction_events"
)

// EventRepository implements the transaction.EventArchive interface for MongoDB
type EventRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewEventRepository creates a new MongoDB event archive
func NewEventRepository(logger *slog.Logger, db *mongo.Database) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the lookup index used by ListByTransaction
func (r *EventRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(EventCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "transaction_id", Value: 1}, {Key: "occurred_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

// Archive inserts event keyed by its id. The outbox may redeliver an event
// after a crash, so a duplicate key means it is already archived.
func (r *EventRepository) Archive(ctx context.Context, event *transaction.Event) error {
	_, err := r.db.Collection(EventCollectionName).InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Debug("Event already archived", "event_id", event.ID.String())
			return nil
		}
		r.logger.Error("Failed to archive event",
			"event_id", event.ID.String(),
			"transaction_id", event.TransactionID.String(),
			"error", err)
		return fmt.Errorf("failed to archive event: %w", err)
	}
	return nil
}

// ListByTransaction returns the history of one transaction, oldest first
func (r *EventRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})

	cursor, err := r.db.Collection(EventCollectionName).Find(ctx, bson.M{"transaction_id": transactionID}, opts)
	if err != nil {
		r.logger.Error("Failed to list events", "transaction_id", transactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*transaction.Event
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode events", "transaction_id", transactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}
