package telephony

import (
	"context"
	"time"
)

// Provider is the outbound call-control boundary used by business logic.
//
// Rules:
//   - No provider HTTP calls outside telephony adapters.
//   - CreateCall is never retried automatically: a duplicate create is a duplicate real phone call.
//   - Non-2xx responses surface as *APIError; anything else means no response was obtained.
type Provider interface {
	Name() string
	Configured() bool

	// CreateCall opens the first leg. ClientState is echoed back on every event for the leg.
	CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error)

	// DialOnLeg dials another party from an answered leg; the provider bridges on answer.
	DialOnLeg(ctx context.Context, req DialRequest) error
}

type CreateCallRequest struct {
	To          string `json:"to"`
	From        string `json:"from"`
	ClientState string `json:"client_state,omitempty"`

	// TimeoutSeconds bounds how long the first leg rings.
	TimeoutSeconds int `json:"timeout_secs,omitempty"`
}

type CreateCallResult struct {
	// LegID is the provider call-control id of the new leg.
	LegID string `json:"call_control_id"`
	// SessionID groups every leg of the same provider session.
	SessionID string `json:"call_session_id,omitempty"`
	LegRef    string `json:"call_leg_id,omitempty"`
}

type DialRequest struct {
	LegID string `json:"-"`

	To             string `json:"to"`
	From           string `json:"from"`
	TimeoutSeconds int    `json:"timeout_secs,omitempty"`
	ClientState    string `json:"client_state,omitempty"`

	// Record requests a recording of the bridged call starting at answer.
	Record bool `json:"-"`
	// RingbackURL is audio played to the waiting party while the new leg rings.
	RingbackURL string `json:"-"`
}

// EventType names the provider webhook events this service acts on.
type EventType string

const (
	EventCallInitiated  EventType = "call.initiated"
	EventCallRinging    EventType = "call.ringing"
	EventCallAnswered   EventType = "call.answered"
	EventCallBridged    EventType = "call.bridged"
	EventCallHangup     EventType = "call.hangup"
	EventRecordingSaved EventType = "call.recording.saved"
)

// Event is a provider-agnostic webhook event.
type Event struct {
	ID   string    `json:"id,omitempty"`
	Type EventType `json:"event_type"`

	LegID     string `json:"call_control_id"`
	SessionID string `json:"call_session_id,omitempty"`
	Direction string `json:"direction,omitempty"`

	// ClientState is the raw (still encoded) token echoed by the provider.
	ClientState string `json:"client_state,omitempty"`

	RecordingURLs []string `json:"recording_urls,omitempty"`
	HangupCause   string   `json:"hangup_cause,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// IsOutbound accepts both spellings used by providers.
func (e Event) IsOutbound() bool {
	return e.Direction == "" || e.Direction == "outbound" || e.Direction == "outgoing"
}
