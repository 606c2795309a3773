package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-orchestrator/internal/calls"
)

// DefaultAttachTimeout bounds the wait for Redis to confirm a new subscription.
const DefaultAttachTimeout = 5 * time.Second

// ChannelName is the Redis pub/sub channel carrying one user's call changes.
func ChannelName(userID string) string {
	return "calls:changes:" + userID
}

// RedisBus publishes through Redis so every API replica sees every change. Each
// replica holds at most one Redis subscription per user with local subscribers.
type RedisBus struct {
	rdb *redis.Client
	hub *hub
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	attachTimeout time.Duration

	mu       sync.Mutex
	upstream map[string]*redis.PubSub
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		rdb:      rdb,
		hub:      newHub(log),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		upstream: map[string]*redis.PubSub{},

		attachTimeout: DefaultAttachTimeout,
	}
	b.hub.onFirst = b.attach
	b.hub.onLast = b.detach
	return b
}

func (b *RedisBus) Publish(ctx context.Context, c calls.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, ChannelName(c.Session.UserID), data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, f Filter) (<-chan calls.Change, error) {
	if f.UserID == "" {
		return nil, ErrUserRequired
	}
	return b.hub.subscribe(ctx, f)
}

// attach runs under the hub lock; it waits for the SUBSCRIBE confirmation so no change
// published after Subscribe returns is missed. The wait is bounded so a stalled Redis
// cannot hold the lock for every other user.
func (b *RedisBus) attach(userID string) error {
	channel := ChannelName(userID)
	ctx, cancel := context.WithTimeout(b.ctx, b.attachTimeout)
	defer cancel()
	ps := b.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("feed: subscribe %s: %w", channel, err)
	}

	b.mu.Lock()
	b.upstream[userID] = ps
	b.mu.Unlock()

	b.log.Debug("redis pubsub subscribed", "user_id", userID, "channel", channel)
	go b.pump(userID, ps)
	return nil
}

func (b *RedisBus) detach(userID string) {
	b.mu.Lock()
	ps := b.upstream[userID]
	delete(b.upstream, userID)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBus) pump(userID string, ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var c calls.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				b.log.Error("failed to unmarshal call change", "user_id", userID, "err", err)
				continue
			}
			b.hub.broadcast(c)
		}
	}
}

func (b *RedisBus) Subscribers(userID string) int { return b.hub.count(userID) }

func (b *RedisBus) Close() {
	b.cancel()
	b.mu.Lock()
	for userID, ps := range b.upstream {
		_ = ps.Close()
		delete(b.upstream, userID)
	}
	b.mu.Unlock()
	b.hub.closeAll()
}
