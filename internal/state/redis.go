package state

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/safety"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for the Redis client
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisStore shares the kill switch between processes through a Redis hash.
//
// Key schema:
//
//	{key} - hash with fields active, reason, triggered_at (RFC3339Nano)
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore creates a store on key
func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key}
}

// Load implements safety.KillSwitchStore. A missing key is an inactive switch.
func (s *RedisStore) Load(ctx context.Context) (safety.KillSwitchState, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return safety.KillSwitchState{}, fmt.Errorf("redis: load kill switch %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return safety.KillSwitchState{}, nil
	}

	active, err := strconv.ParseBool(fields["active"])
	if err != nil {
		return safety.KillSwitchState{}, fmt.Errorf("redis: kill switch %s: bad active field %q", s.key, fields["active"])
	}
	state := safety.KillSwitchState{Active: active, Reason: fields["reason"]}
	if ts := fields["triggered_at"]; ts != "" {
		state.TriggeredAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return safety.KillSwitchState{}, fmt.Errorf("redis: kill switch %s: bad triggered_at: %w", s.key, err)
		}
	}
	return state, nil
}

// Save implements safety.KillSwitchStore
func (s *RedisStore) Save(ctx context.Context, state safety.KillSwitchState) error {
	triggeredAt := ""
	if !state.TriggeredAt.IsZero() {
		triggeredAt = state.TriggeredAt.UTC().Format(time.RFC3339Nano)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key,
		"active", strconv.FormatBool(state.Active),
		"reason", state.Reason,
		"triggered_at", triggeredAt,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save kill switch %s: %w", s.key, err)
	}
	return nil
}
