// Package mongo provides MongoDB implementations of the banned-number store
// and the lifecycle event archive.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linebroker/internal/domain/banned"
)

const (
	// BannedCollectionName is the name of the banned-number collection in MongoDB
	BannedCollectionName = "banned_numbers"
)

// BannedRepository implements the banned.Repository interface for MongoDB
type BannedRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewBannedRepository creates a new MongoDB banned-number repository
func NewBannedRepository(logger *slog.Logger, db *mongo.Database) *BannedRepository {
	return &BannedRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique (service_id, phone_number) key and the
// index behind the offender report.
func (r *BannedRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(BannedCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "service_id", Value: 1}, {Key: "phone_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "service_id", Value: 1}, {Key: "fail_count", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create banned number indexes: %w", err)
	}
	return nil
}

// RecordFailure upserts the record and increments fail_count in one round trip
func (r *BannedRepository) RecordFailure(ctx context.Context, failure banned.Failure) (*banned.Record, error) {
	filter := bson.M{"service_id": failure.ServiceID, "phone_number": failure.PhoneNumber}
	set := bson.M{"last_failed_at": failure.At}
	if failure.AreaCode != "" {
		set["area_code"] = failure.AreaCode
	}
	if failure.Carrier != "" {
		set["carrier"] = failure.Carrier
	}
	update := bson.M{
		"$inc": bson.M{"fail_count": 1},
		"$set": set,
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var record banned.Record
	err := r.db.Collection(BannedCollectionName).FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if err != nil {
		r.logger.Error("Failed to record line failure",
			"service_id", failure.ServiceID,
			"phone_number", failure.PhoneNumber,
			"error", err)
		return nil, fmt.Errorf("failed to record line failure: %w", err)
	}
	return &record, nil
}

// Get returns the record of phoneNumber for serviceID
func (r *BannedRepository) Get(ctx context.Context, serviceID, phoneNumber string) (*banned.Record, error) {
	filter := bson.M{"service_id": serviceID, "phone_number": phoneNumber}

	var record banned.Record
	err := r.db.Collection(BannedCollectionName).FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, banned.ErrRecordNotFound{ServiceID: serviceID, PhoneNumber: phoneNumber}
		}
		r.logger.Error("Failed to get banned number",
			"service_id", serviceID,
			"phone_number", phoneNumber,
			"error", err)
		return nil, fmt.Errorf("failed to get banned number: %w", err)
	}
	return &record, nil
}

// TopOffenders lists records with at least minFailures, worst first. An empty
// serviceID reports across all services.
func (r *BannedRepository) TopOffenders(ctx context.Context, serviceID string, minFailures, limit int) ([]*banned.Record, error) {
	filter := bson.M{"fail_count": bson.M{"$gte": minFailures}}
	if serviceID != "" {
		filter["service_id"] = serviceID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "fail_count", Value: -1}, {Key: "last_failed_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.db.Collection(BannedCollectionName).Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list banned numbers", "service_id", serviceID, "error", err)
		return nil, fmt.Errorf("failed to list banned numbers: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*banned.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode banned numbers: %w", err)
	}
	return records, nil
}
