// Package redis provides the Redis-backed idempotency key store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/linebroker/internal/domain/idempotency"
)

const keyPrefix = "idempotency:"

// IdempotencyStore implements idempotency.Store on plain string keys holding
// the JSON encoded record.
type IdempotencyStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewIdempotencyStore creates a store on an existing client
func NewIdempotencyStore(logger *slog.Logger, client *redis.Client) idempotency.Store {
	return &IdempotencyStore{
		client: client,
		logger: logger,
	}
}

// Reserve claims key with SETNX. When the key is taken the stored record is
// returned so the caller can replay or reject.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (*idempotency.Record, bool, error) {
	payload, err := json.Marshal(idempotency.Record{RequestHash: requestHash, State: idempotency.StateInProgress})
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	// a key can expire between SETNX and GET, so claim it again once
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, keyPrefix+key, string(payload), ttl).Result()
		if err != nil {
			s.logger.Error("Failed to reserve idempotency key", "key", key, "error", err)
			return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
		}
		if ok {
			return nil, true, nil
		}

		existing, err := s.get(ctx, key)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("failed to reserve idempotency key %s: key churned", key)
}

// Complete stores the final response for replay
func (s *IdempotencyStore) Complete(ctx context.Context, key string, record *idempotency.Record, ttl time.Duration) error {
	record.State = idempotency.StateCompleted
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, string(payload), ttl).Err(); err != nil {
		s.logger.Error("Failed to complete idempotency key", "key", key, "error", err)
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release frees key so a failed request can be retried with it
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		s.logger.Error("Failed to release idempotency key", "key", key, "error", err)
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) get(ctx context.Context, key string) (*idempotency.Record, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	var record idempotency.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &record, nil
}
