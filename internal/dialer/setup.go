package dialer

import (
	"context"
	"errors"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/numbers"
)

// SetupInfo is what a run needs before the first dial.
type SetupInfo struct {
	AgentPhone string `json:"agent_phone"`
	FromNumber string `json:"from_number"`
}

type Setup interface {
	Resolve(ctx context.Context, userID string) (SetupInfo, error)
}

// NumbersSetup resolves setup from the numbers repository. The first owned number is
// the assigned outbound number.
type NumbersSetup struct {
	Numbers numbers.Repository
}

func (s NumbersSetup) Resolve(ctx context.Context, userID string) (SetupInfo, error) {
	agent, err := s.Numbers.AgentPhone(ctx, userID)
	if errors.Is(err, numbers.ErrAgentPhoneNotFound) {
		return SetupInfo{}, apperr.AgentPhoneMissing()
	}
	if err != nil {
		return SetupInfo{}, apperr.Internal("agent phone lookup failed", err)
	}

	owned, err := s.Numbers.ListOwned(ctx, userID)
	if err != nil {
		return SetupInfo{}, apperr.Internal("owned numbers lookup failed", err)
	}
	if len(owned) == 0 {
		return SetupInfo{}, apperr.NoOwnedNumbers()
	}
	return SetupInfo{AgentPhone: agent, FromNumber: owned[0].Number}, nil
}
