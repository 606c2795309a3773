package reporting

import (
	"context"
	"time"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/calls"
)

// MaxRange bounds one summary query.
const MaxRange = 31 * 24 * time.Hour

// Repository reads the sessions a summary is built from. calls.Store satisfies it.
type Repository interface {
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]calls.Session, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, apperr.MissingRequired("user_id")
	}
	from, to := req.Range.From, req.Range.To
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return CallsSummary{}, apperr.Validation("to must be after from")
	}
	if to.Sub(from) > MaxRange {
		return CallsSummary{}, apperr.Validation("range is longer than 31 days")
	}
	if s.repo == nil {
		return CallsSummary{}, apperr.NotConfigured("reporting")
	}

	rows, err := s.repo.ListByUserBetween(ctx, req.UserID, from, to)
	if err != nil {
		return CallsSummary{}, apperr.Internal("listing call sessions", err)
	}

	out := CallsSummary{UserID: req.UserID, Range: req.Range}
	ended := 0
	for _, c := range rows {
		out.TotalCalls++
		switch c.Status {
		case calls.StatusRinging:
			out.RingingCalls++
		case calls.StatusAnswered:
			out.AnsweredCalls++
		case calls.StatusBridged:
			out.BridgedCalls++
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		}
		switch c.Flow {
		case calls.FlowAgentFirst:
			out.AgentFirstCalls++
		case calls.FlowLeadFirst:
			out.LeadFirstCalls++
		}
		if c.BridgedAt != nil {
			out.ConnectedCalls++
		}
		if c.RecordingURL != nil {
			out.RecordedCalls++
		}
		if c.EndedAt != nil && c.EndedAt.After(c.StartedAt) {
			out.TotalDurationSeconds += int(c.EndedAt.Sub(c.StartedAt) / time.Second)
			ended++
		}
	}
	if ended > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / ended
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.ConnectedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
