package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - user_id is required; every call start is attributable to an agent.
// - ip capture is best-effort; do not block call starts on audit failures.
type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	CallID    string `json:"call_id,omitempty" db:"call_id"`
	LegID     string `json:"leg_id,omitempty" db:"leg_id"`
	ContactID string `json:"contact_id,omitempty" db:"contact_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallStarted     EventType = "call_started"
	EventTypeCallStartFailed EventType = "call_start_failed"
	// EventTypeSecondLegFailed: the first leg answered but the provider refused to dial
	// the other party, so the call never connected.
	EventTypeSecondLegFailed EventType = "second_leg_failed"
)

// CallAttempt is what the call initiator knows about one start request.
type CallAttempt struct {
	UserID    string
	Role      string
	IP        string
	Flow      string
	CallID    string
	LegID     string
	ContactID string
	// ErrCode is empty on success.
	ErrCode string
}

// SecondLegFailure is a rejected dial of the other party after the first leg answered.
type SecondLegFailure struct {
	UserID    string
	Flow      string
	CallID    string
	LegID     string
	ContactID string
	// ProviderStatus is the HTTP status the provider answered with.
	ProviderStatus int
	Detail         string
}
