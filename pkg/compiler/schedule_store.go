package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TriggerStore records the last-fire time of a Schedule cell's cron
// entries, mirroring the teacher's CronScheduler/RedisCache next-fire
// bookkeeping. It is optional: compileSchedule runs correctly without
// one, just without durability across process restarts.
type TriggerStore interface {
	RecordFire(ctx context.Context, triggerKey string, firedAt time.Time) error
	LastFire(ctx context.Context, triggerKey string) (time.Time, bool, error)
}

// RedisTriggerStore is a TriggerStore backed by Redis, grounded on the
// teacher's internal/infrastructure/cache.RedisCache (Set/Get over a
// *redis.Client with a connection-verifying constructor).
type RedisTriggerStore struct {
	client *redis.Client
}

// NewRedisTriggerStore parses addr as a redis:// URL, connects, and
// verifies the connection with a bounded-time ping.
func NewRedisTriggerStore(addr string) (*RedisTriggerStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("compiler: trigger store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("compiler: trigger store: connect: %w", err)
	}

	return &RedisTriggerStore{client: client}, nil
}

const triggerKeyPrefix = "mbflow:schedule:last_fire:"

// RecordFire persists the time a trigger fired, with no expiry. Missed
// fires are not caught up on restart; the stored time is only returned
// by LastFire.
func (s *RedisTriggerStore) RecordFire(ctx context.Context, triggerKey string, firedAt time.Time) error {
	return s.client.Set(ctx, triggerKeyPrefix+triggerKey, firedAt.Format(time.RFC3339Nano), 0).Err()
}

// LastFire returns the last recorded fire time for triggerKey, if any.
func (s *RedisTriggerStore) LastFire(ctx context.Context, triggerKey string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, triggerKeyPrefix+triggerKey).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("compiler: trigger store: get: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("compiler: trigger store: parse: %w", err)
	}
	return t, true, nil
}

// Close releases the underlying Redis connection.
func (s *RedisTriggerStore) Close() error {
	return s.client.Close()
}
