package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// RedisStore keeps each counter in a hash that Redis expires at the end of its window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return Entry{}, false, nil
	}

	count, err := strconv.Atoi(values["count"])
	if err != nil {
		return Entry{}, false, fmt.Errorf("decode count for %s: %w", key, err)
	}
	resetMs, err := strconv.ParseInt(values["reset_ms"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("decode reset for %s: %w", key, err)
	}

	return Entry{Count: count, ResetAt: time.UnixMilli(resetMs)}, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	k := s.key(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"count", entry.Count,
			"reset_ms", entry.ResetAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, k, entry.ResetAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SweepExpired is a no-op: keys carry their own expiry.
func (s *RedisStore) SweepExpired(context.Context, time.Time) error {
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}
