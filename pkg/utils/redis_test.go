package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestSlotScriptsLoaded(t *testing.T) {
	assert.NotNil(t, slotAcquireScript)
	assert.NotNil(t, slotReleaseScript)
}

func TestAcquireSlot_ArgumentChecks(t *testing.T) {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	tests := []struct {
		name  string
		rdb   *redis.Client
		key   string
		limit int
		ttl   time.Duration
	}{
		{"nil client", nil, "k", 1, time.Second},
		{"empty key", rdb, "", 1, time.Second},
		{"zero limit", rdb, "k", 0, time.Second},
		{"zero ttl", rdb, "k", 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := AcquireSlot(ctx, tt.rdb, tt.key, tt.limit, tt.ttl)
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
	assert.Error(t, ReleaseSlot(ctx, rdb, "k", ""))
	assert.Error(t, ReleaseSlot(ctx, nil, "k", "t"))
}

func TestConcurrencyGuard_UnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	g := ConcurrencyGuard{RDB: rdb, Prefix: "calls:start:", Limit: 1, TTL: time.Second}
	release, ok, err := g.Acquire(context.Background(), "u1")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
}

func TestConcurrencyGuard_Key(t *testing.T) {
	assert.Equal(t, "calls:start:u1", ConcurrencyGuard{Prefix: "calls:start:"}.key("u1"))
	assert.Equal(t, "u1", ConcurrencyGuard{}.key("u1"))
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisConfig{})
	assert.Error(t, err)
}
