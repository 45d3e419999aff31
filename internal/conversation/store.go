// Package conversation persists conversation state in Redis.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hellobot-orchestrator/internal/models"
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached or returns corrupt data.
	ErrStoreUnavailable = errors.New("STORE_UNAVAILABLE")

	// ErrNotFound is returned when no record exists for the id. Callers
	// decide whether that means "start fresh" or "404".
	ErrNotFound = errors.New("CONVERSATION_NOT_FOUND")
)

const keyPrefix = "conv:"

// Store is the conversation store. Records are whole-document JSON values;
// Save replaces the record atomically so readers always observe a completed
// cycle.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a Store. A zero ttl means records never expire.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Load fetches the conversation for id. A missing record is ErrNotFound;
// store connectivity problems return ErrStoreUnavailable.
func (s *Store) Load(ctx context.Context, id string) (*models.Conversation, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, id, err)
	}

	var conv models.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("%w: corrupt record %s: %v", ErrStoreUnavailable, id, err)
	}
	return &conv, nil
}

// Save writes the full record in one SET. Last writer wins.
func (s *Store) Save(ctx context.Context, conv *models.Conversation) error {
	conv.LastUpdated = time.Now().UTC()

	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrStoreUnavailable, conv.ID, err)
	}

	if err := s.client.Set(ctx, keyPrefix+conv.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrStoreUnavailable, conv.ID, err)
	}
	return nil
}

// Exists reports whether a record is present for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", ErrStoreUnavailable, id, err)
	}
	return n > 0, nil
}

// Ping verifies store connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
