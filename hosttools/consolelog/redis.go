package consolelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisConfig for RedisStore.
type RedisConfig struct {
	// Key of the Redis list holding the entries.
	Key string
	// Capacity is the maximum list length. Non-positive selects DefaultCapacity.
	Capacity int
}

// RedisStore is a Store backed by a Redis list: RPUSH appends and LTRIM keeps
// the newest Capacity elements, both in one MULTI/EXEC.
type RedisStore struct {
	client   redis.UniversalClient
	key      string
	capacity int64
}

// NewRedisStore wraps client. The client is owned by the caller.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisStore{client: client, key: cfg.Key, capacity: int64(capacity)}, nil
}

func (s *RedisStore) Append(ctx context.Context, e LogEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, s.key, b)
		p.LTrim(ctx, s.key, -s.capacity, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (s *RedisStore) Entries(ctx context.Context) ([]LogEntry, error) {
	vals, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]LogEntry, 0, len(vals))
	for _, v := range vals {
		var e LogEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
