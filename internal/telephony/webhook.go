package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Webhook envelope. Telnyx wraps the event in "data"; some relays forward the inner
// object directly. Both shapes are accepted.
type webhookEnvelope struct {
	Data *webhookEvent `json:"data"`
	webhookEvent
}

type webhookEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	OccurredAt string         `json:"occurred_at"`
	Payload    webhookPayload `json:"payload"`
}

type webhookPayload struct {
	CallControlID string          `json:"call_control_id"`
	CallSessionID string          `json:"call_session_id"`
	Direction     string          `json:"direction"`
	ClientState   string          `json:"client_state"`
	RecordingURLs json.RawMessage `json:"recording_urls"`
	HangupCause   string          `json:"hangup_cause"`
}

var ErrMissingEventType = errors.New("telephony: webhook missing event_type")

// ParseWebhook decodes a provider webhook body into an Event.
func ParseWebhook(body []byte) (Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("telephony: decode webhook: %w", err)
	}
	ev := env.webhookEvent
	if env.Data != nil {
		ev = *env.Data
	}
	if strings.TrimSpace(ev.EventType) == "" {
		return Event{}, ErrMissingEventType
	}

	out := Event{
		ID:          ev.ID,
		Type:        EventType(ev.EventType),
		LegID:       ev.Payload.CallControlID,
		SessionID:   ev.Payload.CallSessionID,
		Direction:   ev.Payload.Direction,
		ClientState: ev.Payload.ClientState,
		HangupCause: ev.Payload.HangupCause,
	}
	if ev.OccurredAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, ev.OccurredAt); err == nil {
			out.OccurredAt = t.UTC()
		}
	}
	out.RecordingURLs = parseRecordingURLs(ev.Payload.RecordingURLs)
	return out, nil
}

// parseRecordingURLs accepts ["u1","u2"] or {"mp3":"u1","wav":"u2"} (mp3 first).
func parseRecordingURLs(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compact(list)
	}
	var byFormat map[string]string
	if err := json.Unmarshal(raw, &byFormat); err != nil {
		return nil
	}
	formats := make([]string, 0, len(byFormat))
	for f := range byFormat {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool {
		if formats[i] == "mp3" {
			return true
		}
		if formats[j] == "mp3" {
			return false
		}
		return formats[i] < formats[j]
	})
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, byFormat[f])
	}
	return compact(out)
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
