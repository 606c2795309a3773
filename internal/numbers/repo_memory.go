package numbers

import (
	"context"
	"sync"
)

// MemoryRepo keeps numbers in insertion order. Used by tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	owned  map[string][]OwnedNumber
	phones map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{owned: map[string][]OwnedNumber{}, phones: map[string]string{}}
}

func (r *MemoryRepo) AddOwned(n OwnedNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owned[n.UserID] = append(r.owned[n.UserID], n)
}

func (r *MemoryRepo) SetAgentPhone(userID, phone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phones[userID] = phone
}

func (r *MemoryRepo) ListOwned(ctx context.Context, userID string) ([]OwnedNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OwnedNumber, len(r.owned[userID]))
	copy(out, r.owned[userID])
	return out, nil
}

func (r *MemoryRepo) AgentPhone(ctx context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.phones[userID]
	if !ok || p == "" {
		return "", ErrAgentPhoneNotFound
	}
	return p, nil
}
