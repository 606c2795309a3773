package calls

import (
	"context"
	"log/slog"
	"time"
)

// Notifier fans store changes out to subscribers (see internal/feed).
type Notifier interface {
	Publish(ctx context.Context, c Change) error
}

// NotifyingStore publishes a Change after every write that created or modified a row.
// Publish failures are logged; the write itself already succeeded.
type NotifyingStore struct {
	Store
	notifier Notifier
	log      *slog.Logger
}

func NewNotifyingStore(inner Store, n Notifier, log *slog.Logger) *NotifyingStore {
	if log == nil {
		log = slog.Default()
	}
	return &NotifyingStore{Store: inner, notifier: n, log: log}
}

func (n *NotifyingStore) EnsureSession(ctx context.Context, s Session) (Session, bool, error) {
	out, created, err := n.Store.EnsureSession(ctx, s)
	if err == nil && created {
		n.publish(ctx, ChangeCreated, out)
	}
	return out, created, err
}

func (n *NotifyingStore) UpdateStatus(ctx context.Context, legID string, status Status) (Session, bool, error) {
	out, changed, err := n.Store.UpdateStatus(ctx, legID, status)
	if err == nil && changed {
		n.publish(ctx, ChangeUpdated, out)
	}
	return out, changed, err
}

func (n *NotifyingStore) UpdateByEitherLeg(ctx context.Context, legAID, legBID string, p Patch) (Session, bool, error) {
	out, changed, err := n.Store.UpdateByEitherLeg(ctx, legAID, legBID, p)
	if err == nil && changed {
		n.publish(ctx, ChangeUpdated, out)
	}
	return out, changed, err
}

func (n *NotifyingStore) publish(ctx context.Context, op ChangeOp, s Session) {
	if n.notifier == nil {
		return
	}
	c := Change{Op: op, Session: s, At: time.Now().UTC()}
	if err := n.notifier.Publish(ctx, c); err != nil {
		n.log.Warn("call change publish failed", "call_id", s.ID, "leg_a_id", s.LegAID, "err", err)
	}
}
