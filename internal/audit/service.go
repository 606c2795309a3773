package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallAttempt records a call start, successful or not.
func (s *Service) LogCallAttempt(ctx context.Context, a CallAttempt) error {
	e := Event{
		UserID:    a.UserID,
		Type:      EventTypeCallStarted,
		ActorRole: a.Role,
		IPAddress: a.IP,
		CallID:    a.CallID,
		LegID:     a.LegID,
		ContactID: a.ContactID,
		Message:   a.Flow + " call started",
	}
	if a.ErrCode != "" {
		e.Type = EventTypeCallStartFailed
		e.Message = a.Flow + " call start failed"
	}
	meta, err := json.Marshal(map[string]string{"flow": a.Flow, "error_code": a.ErrCode})
	if err == nil {
		e.Metadata = string(meta)
	}
	return s.Append(ctx, e)
}

// LogSecondLegFailure records a call that answered but could not be connected.
func (s *Service) LogSecondLegFailure(ctx context.Context, f SecondLegFailure) error {
	e := Event{
		UserID:    f.UserID,
		Type:      EventTypeSecondLegFailed,
		CallID:    f.CallID,
		LegID:     f.LegID,
		ContactID: f.ContactID,
		Message:   f.Flow + " second leg rejected by provider",
	}
	meta, err := json.Marshal(map[string]string{
		"flow":            f.Flow,
		"provider_status": strconv.Itoa(f.ProviderStatus),
		"detail":          f.Detail,
	})
	if err == nil {
		e.Metadata = string(meta)
	}
	return s.Append(ctx, e)
}
