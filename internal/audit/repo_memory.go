package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in process for tests and APP_STORAGE=memory. It drops the
// oldest events past its capacity.
type MemoryRepo struct {
	mu     sync.Mutex
	max    int
	events []Event
}

// DefaultMemoryCapacity bounds a MemoryRepo built with NewMemoryRepo.
const DefaultMemoryCapacity = 10_000

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{max: DefaultMemoryCapacity} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.events) >= r.max {
		r.events = append(r.events[:0], r.events[1:]...)
	}
	r.events = append(r.events, e)
	return nil
}

// ForCall returns the events naming callID, oldest first.
func (r *MemoryRepo) ForCall(callID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
