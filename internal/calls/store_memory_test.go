package calls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_EnsureSessionIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	first, created, err := m.EnsureSession(ctx, Session{ID: "c1", LegAID: "leg-a", UserID: "u1", ContactID: "k1", Flow: FlowAgentFirst})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusRinging, first.Status)

	again, created, err := m.EnsureSession(ctx, Session{ID: "c2", LegAID: "leg-a", UserID: "other", ContactID: "k2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c1", again.ID)
	assert.Equal(t, "u1", again.UserID)

	list, err := m.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore_UpdateByEitherLeg(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, _, err := m.EnsureSession(ctx, Session{ID: "c1", LegAID: "leg-a", UserID: "u1"})
	require.NoError(t, err)

	s, changed, err := m.UpdateByEitherLeg(ctx, "leg-a", "leg-b", Patch{LegBID: "leg-b", Status: StatusBridged})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusBridged, s.Status)

	// Only the leg-b id is known to the caller.
	ended := time.Now()
	s, changed, err = m.UpdateByEitherLeg(ctx, "leg-b", "", Patch{Status: StatusCompleted, EndedAt: &ended})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "c1", s.ID)
	assert.Equal(t, StatusCompleted, s.Status)

	_, _, err = m.UpdateByEitherLeg(ctx, "nope", "", Patch{Status: StatusCompleted})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_ListByUserNewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Unix(1700000000, 0).UTC()
	for i, leg := range []string{"a", "b", "c"} {
		_, _, err := m.EnsureSession(ctx, Session{ID: leg, LegAID: leg, UserID: "u1", StartedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	_, _, err := m.EnsureSession(ctx, Session{ID: "x", LegAID: "x", UserID: "u2"})
	require.NoError(t, err)

	list, err := m.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestMemoryStore_ListByUserBetweenIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Unix(1700000000, 0).UTC()
	for i, leg := range []string{"a", "b", "c", "d"} {
		_, _, err := m.EnsureSession(ctx, Session{ID: leg, LegAID: leg, UserID: "u1", StartedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	_, _, err := m.EnsureSession(ctx, Session{ID: "x", LegAID: "x", UserID: "u2", StartedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	list, err := m.ListByUserBetween(ctx, "u1", base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, clampLimit(0))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, MaxListLimit, clampLimit(10_000))
}
