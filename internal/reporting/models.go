package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest asks for one user's call totals over [From, To).
type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type CallsSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	RingingCalls   int `json:"ringing_calls"`
	AnsweredCalls  int `json:"answered_calls"`
	BridgedCalls   int `json:"bridged_calls"`
	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`

	AgentFirstCalls int `json:"agent_first_calls"`
	LeadFirstCalls  int `json:"lead_first_calls"`

	// ConnectedCalls were bridged: both parties were on the line.
	ConnectedCalls int     `json:"connected_calls"`
	ConnectionRate float64 `json:"connection_rate"`

	RecordedCalls int `json:"recorded_calls"`

	// Durations cover ended sessions only.
	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}
