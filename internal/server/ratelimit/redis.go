package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyGrace outlives the window so a key is never dropped while it still
// holds calls inside it.
const keyGrace = 10 * time.Second

// RedisConfig holds the connection settings for RedisLimiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisLimiter keeps one sorted set of call timestamps per key, so the
// window is shared by every server instance using the same Redis.
type RedisLimiter struct {
	client clientInterface
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// clientInterface abstracts the Redis operations the limiter uses.
type clientInterface interface {
	// slide records member at now, drops entries older than the window and
	// returns how many remain.
	slide(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error)
	close() error
}

// NewRedisLimiter connects to Redis and checks the connection.
func NewRedisLimiter(ctx context.Context, cfg RedisConfig, limit int, window time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return newRedisLimiter(&redisClientWrapper{client: client}, cfg.Prefix, limit, window), nil
}

func newRedisLimiter(client clientInterface, prefix string, limit int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "gophauth:ratelimit:"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := r.client.slide(ctx, r.prefix+key, uuid.NewString(), r.now(), r.window)
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n <= int64(r.limit), nil
}

func (r *RedisLimiter) Close() error {
	return r.client.close()
}

// redisClientWrapper adapts *redis.Client to clientInterface.
type redisClientWrapper struct {
	client *redis.Client
}

func (r *redisClientWrapper) slide(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		p.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
		card = p.ZCard(ctx, key)
		p.Expire(ctx, key, window+keyGrace)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (r *redisClientWrapper) close() error {
	return r.client.Close()
}
