package countstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCountPrefix = "ninjaguard/count/"

// Counters kept in redis, so quotas survive a restart. Hour and day buckets expire on their own.
type RedisCountStore struct {
	Client *redis.Client
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(ctx context.Context, redisURL string) (*RedisCountStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCountStore{Client: rdb}, nil
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	c, err := s.Client.Get(ctx, redisCountPrefix+bucketKey(name, val, period, time.Now())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	now := time.Now()
	// all buckets in one round-trip
	pipe := s.Client.Pipeline()
	for _, p := range AllPeriods {
		s.queueIncr(ctx, pipe, bucketKey(name, val, p, now), bucketTTL(p))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCountStore) IncrementPeriod(ctx context.Context, name, val, period string) error {
	pipe := s.Client.Pipeline()
	s.queueIncr(ctx, pipe, bucketKey(name, val, period, time.Now()), bucketTTL(period))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCountStore) queueIncr(ctx context.Context, pipe redis.Pipeliner, key string, ttl time.Duration) {
	pipe.Incr(ctx, redisCountPrefix+key)
	if ttl > 0 {
		pipe.Expire(ctx, redisCountPrefix+key, ttl)
	}
}
