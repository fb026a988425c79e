package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
)

// Store is the shared list store leaders and workers coordinate through.
// Pop must be atomic: two concurrent callers never receive the same value.
type Store interface {
	// Push appends values to the tail of the list at key.
	Push(ctx context.Context, key string, values ...string) error
	// Pop removes and returns the head of the list at key. It does not
	// block; ok is false when the list is empty or missing.
	Pop(ctx context.Context, key string) (value string, ok bool, err error)
	// Len returns the number of values in the list at key.
	Len(ctx context.Context, key string) (int64, error)
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store with redis lists.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient builds a client from a redis:// or rediss:// URL. With
// cluster set the URL may carry extra nodes as addr query parameters.
func NewRedisClient(url string, cluster bool) (redis.UniversalClient, error) {
	if cluster {
		log.Info("Using cluster redis client.")
		opts, err := redis.ParseClusterURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis cluster url: %w", err)
		}
		return redis.NewClusterClient(opts), nil
	}
	log.Debug("Using default redis client.")
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// CheckConnection pings the store so an unreachable redis fails fast
func CheckConnection(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Push(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := s.client.RPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Pop(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", key, err)
	}
	return n, nil
}

// Delete removes keys one at a time; the keys of a run do not share a
// hash slot, so a multi-key DEL would be rejected by a cluster.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
