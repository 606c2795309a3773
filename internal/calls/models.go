package calls

import "time"

// Session is the durable record of one outbound attempt (table call_sessions).
//
// Identity invariant: LegAID is unique; events naming either LegAID or LegBID resolve
// to the same row. UserID and ContactID are set at creation and never change.
type Session struct {
	ID   string `json:"id" db:"id"`
	Flow Flow   `json:"flow" db:"flow"`

	LegAID string  `json:"leg_a_id" db:"leg_a_id"`
	LegBID *string `json:"leg_b_id,omitempty" db:"leg_b_id"`

	UserID    string `json:"user_id" db:"user_id"`
	ContactID string `json:"contact_id" db:"contact_id"`

	AgentNumber string `json:"agent_number" db:"agent_number"`
	LeadNumber  string `json:"lead_number" db:"lead_number"`
	// FromNumber is the caller id presented on both legs.
	FromNumber string `json:"from_number" db:"from_number"`

	Status     Status `json:"status" db:"status"`
	StatusRank int    `json:"-" db:"status_rank"`

	RecordingURL      *string `json:"recording_url,omitempty" db:"recording_url"`
	HangupCause       *string `json:"hangup_cause,omitempty" db:"hangup_cause"`
	ProviderSessionID *string `json:"provider_session_id,omitempty" db:"provider_session_id"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	// BridgedAt is set when both parties were connected. It survives the later
	// move to completed.
	BridgedAt *time.Time `json:"bridged_at,omitempty" db:"bridged_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type Flow string

const (
	FlowAgentFirst Flow = "agent_first"
	FlowLeadFirst  Flow = "lead_first"
)

func (f Flow) Valid() bool {
	return f == FlowAgentFirst || f == FlowLeadFirst
}

type Status string

const (
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusBridged   Status = "bridged"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Rank orders statuses. Writes only move a session forward; the two terminal statuses
// share a rank so neither overwrites the other.
func (s Status) Rank() int {
	switch s {
	case StatusRinging:
		return 1
	case StatusAnswered:
		return 2
	case StatusBridged:
		return 3
	case StatusCompleted, StatusFailed:
		return 4
	default:
		return 0
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Patch is a partial update applied by leg id. Zero fields are left untouched; set-once
// fields (LegBID, RecordingURL, EndedAt, HangupCause) keep their first value.
type Patch struct {
	Status       Status
	LegBID       string
	RecordingURL string
	EndedAt      *time.Time
	HangupCause  string
}

// apply mutates s and reports whether anything changed.
func (s *Session) apply(p Patch, now time.Time) bool {
	changed := false
	if p.Status != "" && p.Status.Rank() > s.StatusRank {
		s.Status = p.Status
		s.StatusRank = p.Status.Rank()
		if p.Status == StatusBridged {
			v := now
			s.BridgedAt = &v
		}
		changed = true
	}
	if p.LegBID != "" && s.LegBID == nil && p.LegBID != s.LegAID {
		v := p.LegBID
		s.LegBID = &v
		changed = true
	}
	if p.RecordingURL != "" && s.RecordingURL == nil {
		v := p.RecordingURL
		s.RecordingURL = &v
		changed = true
	}
	if p.EndedAt != nil && s.EndedAt == nil {
		v := p.EndedAt.UTC()
		s.EndedAt = &v
		changed = true
	}
	if p.HangupCause != "" && s.HangupCause == nil {
		v := p.HangupCause
		s.HangupCause = &v
		changed = true
	}
	if changed {
		s.UpdatedAt = now
	}
	return changed
}

// ChangeOp describes a store write that subscribers observe.
type ChangeOp string

const (
	ChangeCreated ChangeOp = "created"
	ChangeUpdated ChangeOp = "updated"
)

// Change is published after every write that created or modified a session.
type Change struct {
	Op      ChangeOp  `json:"op"`
	Session Session   `json:"session"`
	At      time.Time `json:"at"`
}
