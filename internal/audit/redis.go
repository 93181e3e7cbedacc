package audit

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "enrich:audit"

// RedisStore appends events to a Redis list, newest at the head, and
// trims it to a configured retention length.
type RedisStore struct {
	client    *redis.Client
	key       string
	retention int64
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKey overrides the Redis list key.
func WithKey(key string) RedisOption {
	return func(s *RedisStore) { s.key = key }
}

// WithRetention caps the list length; older events are trimmed off the
// tail after each append. Zero means unbounded.
func WithRetention(n int64) RedisOption {
	return func(s *RedisStore) { s.retention = n }
}

// NewRedisStore returns a store backed by the given Redis client. It
// pings the server so misconfiguration fails at startup, not on the
// first audited operation.
func NewRedisStore(ctx context.Context, client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{client: client, key: defaultRedisKey, retention: 100000}
	for _, opt := range opts {
		opt(s)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("audit: redis ping: %w", err)
	}
	return s, nil
}

func (s *RedisStore) Append(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, raw)
	if s.retention > 0 {
		pipe.LTrim(ctx, s.key, 0, s.retention-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := s.client.LRange(ctx, s.key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: read events: %w", err)
	}
	out := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("audit: decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
