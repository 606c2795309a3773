// Package feed fans call-session changes out to live subscribers: the browser call
// panel and the power dialer. Subscriptions are scoped to a user and optionally a
// contact, and end when the subscriber's context is cancelled.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"voice-orchestrator/internal/calls"
)

const subscriberBuffer = 64

var ErrUserRequired = errors.New("feed: user id is required")

// Filter selects the changes a subscriber receives. UserID is required.
type Filter struct {
	UserID    string
	ContactID string
}

func (f Filter) Match(c calls.Change) bool {
	if c.Session.UserID != f.UserID {
		return false
	}
	return f.ContactID == "" || c.Session.ContactID == f.ContactID
}

type subscriber struct {
	filter Filter
	events chan calls.Change
}

// hub tracks local subscribers per user and delivers without blocking the publisher.
type hub struct {
	mu      sync.RWMutex
	clients map[string]map[*subscriber]struct{}
	log     *slog.Logger

	// onFirst/onLast let a bus attach and detach upstream resources per user.
	onFirst func(userID string) error
	onLast  func(userID string)
}

func newHub(log *slog.Logger) *hub {
	if log == nil {
		log = slog.Default()
	}
	return &hub{clients: map[string]map[*subscriber]struct{}{}, log: log}
}

func (h *hub) subscribe(ctx context.Context, f Filter) (<-chan calls.Change, error) {
	sub := &subscriber{filter: f, events: make(chan calls.Change, subscriberBuffer)}

	h.mu.Lock()
	if h.clients[f.UserID] == nil {
		if h.onFirst != nil {
			if err := h.onFirst(f.UserID); err != nil {
				h.mu.Unlock()
				return nil, err
			}
		}
		h.clients[f.UserID] = map[*subscriber]struct{}{}
	}
	h.clients[f.UserID][sub] = struct{}{}
	count := len(h.clients[f.UserID])
	h.mu.Unlock()

	h.log.Debug("feed subscriber added", "user_id", f.UserID, "contact_id", f.ContactID, "subscribers", count)

	go func() {
		<-ctx.Done()
		h.remove(sub)
	}()
	return sub.events, nil
}

func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := sub.filter.UserID
	set, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.events)
	if len(set) == 0 {
		delete(h.clients, userID)
		if h.onLast != nil {
			h.onLast(userID)
		}
	}
}

func (h *hub) broadcast(c calls.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.clients[c.Session.UserID] {
		if !sub.filter.Match(c) {
			continue
		}
		select {
		case sub.events <- c:
		default:
			h.log.Warn("feed subscriber buffer full, dropping change",
				"user_id", c.Session.UserID, "call_id", c.Session.ID)
		}
	}
}

func (h *hub) count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for sub := range set {
			close(sub.events)
		}
		delete(h.clients, userID)
	}
}
