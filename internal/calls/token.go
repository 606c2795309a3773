package calls

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ClientState is the context threaded through the provider on a call leg. The provider
// echoes it on every event for that leg; it is the only way the webhook learns what the
// call is for.
type ClientState struct {
	Flow        Flow   `json:"flow"`
	CallID      string `json:"call_id,omitempty"`
	UserID      string `json:"user_id"`
	ContactID   string `json:"contact_id"`
	AgentNumber string `json:"agent_number"`
	LeadNumber  string `json:"lead_number"`
	FromNumber  string `json:"from_number"`

	// Lead-first extras.
	Record          bool   `json:"record,omitempty"`
	RingTimeoutSecs int    `json:"ring_timeout_secs,omitempty"`
	RingbackURL     string `json:"ringback_url,omitempty"`
	SessionID       string `json:"session_id,omitempty"`

	// LegAID is set only on tokens attached to the second-leg dial.
	LegAID string `json:"leg_a_id,omitempty"`
}

// IsSecondLeg reports whether the token belongs to a leg other than legID's own first leg.
func (c ClientState) IsSecondLeg(legID string) bool {
	return c.LegAID != "" && c.LegAID != legID
}

var ErrEmptyClientState = errors.New("calls: client state is empty")

func EncodeClientState(c ClientState) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("calls: encode client state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeClientState never panics. Any failure is returned as an error that the webhook
// treats as "no action".
func DecodeClientState(raw string) (ClientState, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ClientState{}, ErrEmptyClientState
	}

	var decoded []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		decoded, err = enc.DecodeString(raw)
		if err == nil {
			break
		}
	}
	if err != nil {
		return ClientState{}, fmt.Errorf("calls: client state is not base64: %w", err)
	}

	var c ClientState
	if err := json.Unmarshal(decoded, &c); err != nil {
		return ClientState{}, fmt.Errorf("calls: client state is not json: %w", err)
	}
	if !c.Flow.Valid() {
		return ClientState{}, fmt.Errorf("calls: client state has unknown flow %q", c.Flow)
	}
	return c, nil
}
