package otps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyGrace keeps an expired record readable for a while so a late verify
// sees otp_expired instead of no_pending_otp.
const keyGrace = time.Minute

// RedisConfig holds the connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps one JSON-encoded OTP per email under prefix+email.
// Keys expire on their own, so DeleteExpired is a no-op.
type RedisStore struct {
	client clientInterface
	prefix string
}

// clientInterface abstracts the Redis operations the store uses.
type clientInterface interface {
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, error)
	del(ctx context.Context, key string) error
	compareAndDelete(ctx context.Context, key, id string) (bool, error)
	incrementAttempts(ctx context.Context, key, id string) (int64, error)
	ping(ctx context.Context) error
	close() error
}

var errMiss = errors.New("redis: key not found")

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
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

	return newRedisStore(&redisClientWrapper{client: client}, cfg.Prefix), nil
}

func newRedisStore(client clientInterface, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gophauth:otp:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

type redisOTP struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

func (s *RedisStore) key(email string) string {
	return s.prefix + email
}

func (s *RedisStore) DeleteByEmail(ctx context.Context, email string) error {
	if err := s.client.del(ctx, s.key(email)); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, o *models.OTP) (*models.OTP, error) {
	o.ID = uuid.NewString()
	o.Attempts = 0

	data, err := json.Marshal(redisOTP{
		ID: o.ID, Email: o.Email, Code: o.Code,
		CreatedAt: o.CreatedAt, ExpiresAt: o.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal otp: %w", err)
	}

	ttl := o.ExpiresAt.Sub(o.CreatedAt) + keyGrace
	if err := s.client.set(ctx, s.key(o.Email), data, ttl); err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return o, nil
}

func (s *RedisStore) FindByEmail(ctx context.Context, email string) (*models.OTP, error) {
	data, err := s.client.get(ctx, s.key(email))
	if err != nil {
		if errors.Is(err, errMiss) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var r redisOTP
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal otp: %w", err)
	}
	return &models.OTP{
		ID: r.ID, Email: r.Email, Code: r.Code,
		CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt, Attempts: r.Attempts,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, o *models.OTP) (bool, error) {
	ok, err := s.client.compareAndDelete(ctx, s.key(o.Email), o.ID)
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, o *models.OTP) (int, error) {
	n, err := s.client.incrementAttempts(ctx, s.key(o.Email), o.ID)
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	if n < 0 {
		return 0, common.ErrorNotFound
	}
	return int(n), nil
}

func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.close()
}

// compareAndDeleteScript deletes KEYS[1] only if its record id equals ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if cjson.decode(v).id ~= ARGV[1] then return 0 end
return redis.call('DEL', KEYS[1])
`)

// incrementAttemptsScript bumps the attempts field of the record with id
// ARGV[1], keeping the key TTL. It returns -1 when the record is gone.
var incrementAttemptsScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return -1 end
local o = cjson.decode(v)
if o.id ~= ARGV[1] then return -1 end
o.attempts = (o.attempts or 0) + 1
redis.call('SET', KEYS[1], cjson.encode(o), 'KEEPTTL')
return o.attempts
`)

// redisClientWrapper adapts *redis.Client to clientInterface.
type redisClientWrapper struct {
	client *redis.Client
}

func (r *redisClientWrapper) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisClientWrapper) get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *redisClientWrapper) del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisClientWrapper) compareAndDelete(ctx context.Context, key, id string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, id).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *redisClientWrapper) incrementAttempts(ctx context.Context, key, id string) (int64, error) {
	return incrementAttemptsScript.Run(ctx, r.client, []string{key}, id).Int64()
}

func (r *redisClientWrapper) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClientWrapper) close() error {
	return r.client.Close()
}
