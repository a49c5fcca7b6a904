package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/posqueue/internal/middleware"
	"github.com/redis/go-redis/v9"
)

var _ middleware.ReplayStore = (*ReplayStore)(nil)

// ReplayStore keeps idempotent control API responses in Redis so they
// survive a daemon restart.
type ReplayStore struct {
	client *redis.Client
	prefix string
}

func NewReplayStore(client *redis.Client, prefix string) *ReplayStore {
	return &ReplayStore{client: client, prefix: fmt.Sprintf("idempotency:%s:", prefix)}
}

func (s *ReplayStore) Get(ctx context.Context, key string) (*middleware.ReplayEntry, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get replay entry: %w", err)
	}
	var entry middleware.ReplayEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode replay entry: %w", err)
	}
	return &entry, nil
}

func (s *ReplayStore) Set(ctx context.Context, key string, entry middleware.ReplayEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode replay entry: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set replay entry: %w", err)
	}
	return nil
}
