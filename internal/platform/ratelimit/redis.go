package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/digitalimmortality/backend/internal/platform/logging"
)

const keyPrefix = "ratelimit:"

// RedisOptions selects the Redis instance backing the limiter.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// ClientConstructor allows tests to swap redis.NewClient.
type ClientConstructor func(opt *redis.Options) *redis.Client

// Connect opens a Redis client and verifies it with PING.
func Connect(ctx context.Context, opts RedisOptions, newClient ClientConstructor) (*redis.Client, error) {
	logging.LogInfo(ctx, "connecting to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	if newClient == nil {
		newClient = redis.NewClient
	}
	client := newClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Redis is a Limiter shared across instances through Redis counters.
// Each window is one key, incremented and given a TTL in one pipeline.
type Redis struct {
	client redis.Cmdable
	cfg    Config
	now    func() time.Time
}

var _ Limiter = (*Redis)(nil)

// NewRedis returns a limiter storing counters in client.
func NewRedis(client redis.Cmdable, cfg Config) (*Redis, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Redis{client: client, cfg: cfg, now: time.Now}, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	start := windowStart(now, r.cfg.Window)
	redisKey := windowKey(key, start)

	var incr *redis.IntCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.Expire(ctx, redisKey, r.cfg.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", redisKey, err)
	}
	return decide(r.cfg, incr.Val(), start, now), nil
}

func windowKey(key string, start time.Time) string {
	return keyPrefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}
