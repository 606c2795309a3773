package feed

import (
	"context"
	"log/slog"

	"voice-orchestrator/internal/calls"
)

// MemoryBus delivers changes within one process.
type MemoryBus struct {
	hub *hub
}

func NewMemoryBus(log *slog.Logger) *MemoryBus {
	return &MemoryBus{hub: newHub(log)}
}

func (b *MemoryBus) Publish(ctx context.Context, c calls.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.hub.broadcast(c)
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, f Filter) (<-chan calls.Change, error) {
	if f.UserID == "" {
		return nil, ErrUserRequired
	}
	return b.hub.subscribe(ctx, f)
}

func (b *MemoryBus) Subscribers(userID string) int { return b.hub.count(userID) }

func (b *MemoryBus) Close() { b.hub.closeAll() }
