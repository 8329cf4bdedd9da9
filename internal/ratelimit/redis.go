package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"opsportal/internal/models"
)

const defaultRedisPrefix = "opsportal:ratelimit:session"

// incrementScript opens, resets or increments a window in one round trip.
// A key without a TTL is treated as a fresh window.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisSessionStore keeps session counters in Redis. Window expiry is left
// to key TTLs, so Redis time is authoritative rather than the caller's now.
type RedisSessionStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisSessionStore.
type RedisOption func(*RedisSessionStore)

// WithRedisPrefix sets the key namespace.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisSessionStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// NewRedisSessionStore wraps an existing client.
func NewRedisSessionStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisSessionStore {
	s := &RedisSessionStore{rdb: rdb, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisClient builds a client from configuration and verifies it answers.
func NewRedisClient(ctx context.Context, cfg models.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *RedisSessionStore) GetSessionRateLimit(ctx context.Context, sessionID string) (*models.RateLimitRecord, error) {
	key := s.key(sessionID)

	pipe := s.rdb.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	count, err := getCmd.Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return &models.RateLimitRecord{
		Key:       sessionID,
		Count:     count,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (s *RedisSessionStore) ResetSessionRateLimit(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) IncrementSessionRateLimit(ctx context.Context, sessionID string, window time.Duration, now time.Time) (*models.RateLimitRecord, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	res, err := incrementScript.Run(ctx, s.rdb, []string{s.key(sessionID)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis increment: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("redis increment: unexpected reply length %d", len(res))
	}
	return &models.RateLimitRecord{
		Key:       sessionID,
		Count:     res[0],
		ExpiresAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
