package calls

import (
	"context"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("calls: session not found")

// Store persists call sessions. Every mutating method reports whether the row actually
// changed so callers can de-duplicate provider retries.
type Store interface {
	// EnsureSession inserts s keyed by LegAID unless a row already exists. It returns the
	// stored row and whether it was created by this call.
	EnsureSession(ctx context.Context, s Session) (Session, bool, error)
	// UpdateStatus moves the session owning legID (as leg A or leg B) forward to status.
	UpdateStatus(ctx context.Context, legID string, status Status) (Session, bool, error)
	// UpdateByEitherLeg applies p to the session matching legAID or legBID on either column.
	// legBID may be empty.
	UpdateByEitherLeg(ctx context.Context, legAID, legBID string, p Patch) (Session, bool, error)
	// ListByUser returns the user's sessions, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Session, error)
	// ListByUserBetween returns every session the user started in [from, to), oldest first.
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]Session, error)
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
