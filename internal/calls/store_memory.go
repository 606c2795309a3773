package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session // by id
	byLeg    map[string]string   // leg id (A or B) -> session id
	order    []string
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*Session{},
		byLeg:    map[string]string{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) EnsureSession(ctx context.Context, s Session) (Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byLeg[s.LegAID]; ok {
		return *m.sessions[id], false, nil
	}

	now := m.now()
	if s.Status == "" {
		s.Status = StatusRinging
	}
	s.StatusRank = s.Status.Rank()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.UpdatedAt = now
	if _, taken := m.sessions[s.ID]; taken || s.ID == "" {
		s.ID = s.LegAID
	}

	cp := s
	m.sessions[s.ID] = &cp
	m.byLeg[s.LegAID] = s.ID
	if s.LegBID != nil {
		m.byLeg[*s.LegBID] = s.ID
	}
	m.order = append(m.order, s.ID)
	return cp, true, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, legID string, status Status) (Session, bool, error) {
	return m.UpdateByEitherLeg(ctx, legID, "", Patch{Status: status})
}

func (m *MemoryStore) UpdateByEitherLeg(ctx context.Context, legAID, legBID string, p Patch) (Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byLeg[legAID]
	if !ok && legBID != "" {
		id, ok = m.byLeg[legBID]
	}
	if !ok {
		return Session{}, false, ErrSessionNotFound
	}

	s := m.sessions[id]
	hadLegB := s.LegBID != nil
	changed := s.apply(p, m.now())
	if !hadLegB && s.LegBID != nil {
		m.byLeg[*s.LegBID] = s.ID
	}
	return *s, changed, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.sessions[m.order[i]]
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0)
	for _, id := range m.order {
		s := m.sessions[id]
		if s.UserID != userID || s.StartedAt.Before(from) || !s.StartedAt.Before(to) {
			continue
		}
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
