package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig sizes the client shared by the change feed and the start guard. Every
// live feed subscriber holds one pub/sub connection outside the pool.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Basic timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pool tuning
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// The cap is a sorted set of holder tokens scored by expiry, so a holder that dies
// only blocks its own slot until its TTL, and a late release never frees someone
// else's slot. Expiry uses the Redis clock to stay consistent across instances.
var slotAcquireScript = redis.NewScript(`
-- KEYS[1] = holders zset
-- ARGV[1] = limit, ARGV[2] = ttl_ms, ARGV[3] = holder token
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now)
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], now + tonumber(ARGV[2]), ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var slotReleaseScript = redis.NewScript(`
-- KEYS[1] = holders zset, ARGV[1] = holder token
redis.call('ZREM', KEYS[1], ARGV[1])
if redis.call('ZCARD', KEYS[1]) == 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// AcquireSlot takes one of limit slots under key for at most ttl. On success it
// returns the holder token ReleaseSlot needs.
func AcquireSlot(ctx context.Context, rdb *redis.Client, key string, limit int, ttl time.Duration) (string, bool, error) {
	switch {
	case rdb == nil:
		return "", false, errors.New("redis client is nil")
	case key == "":
		return "", false, errors.New("key is required")
	case limit <= 0:
		return "", false, errors.New("limit must be > 0")
	case ttl <= 0:
		return "", false, errors.New("ttl must be > 0")
	}

	token := uuid.NewString()
	res, err := slotAcquireScript.Run(ctx, rdb, []string{key}, limit, ttl.Milliseconds(), token).Int()
	if err != nil {
		return "", false, err
	}
	if res != 1 {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseSlot gives back the slot held by token. Releasing an expired slot is a no-op.
func ReleaseSlot(ctx context.Context, rdb *redis.Client, key, token string) error {
	if rdb == nil {
		return errors.New("redis client is nil")
	}
	if key == "" || token == "" {
		return errors.New("key and token are required")
	}
	return slotReleaseScript.Run(ctx, rdb, []string{key}, token).Err()
}

// ConcurrencyGuard binds a client, limit and TTL so callers only deal in keys.
type ConcurrencyGuard struct {
	RDB    *redis.Client
	Prefix string
	Limit  int
	TTL    time.Duration
}

func (g ConcurrencyGuard) key(k string) string {
	return g.Prefix + k
}

// Acquire takes a slot for k. release is nil unless ok.
func (g ConcurrencyGuard) Acquire(ctx context.Context, k string) (release func(context.Context) error, ok bool, err error) {
	key := g.key(k)
	token, ok, err := AcquireSlot(ctx, g.RDB, key, g.Limit, g.TTL)
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error { return ReleaseSlot(ctx, g.RDB, key, token) }, true, nil
}
