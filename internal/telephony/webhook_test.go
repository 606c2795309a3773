package telephony

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook_TelnyxEnvelope(t *testing.T) {
	body := []byte(`{"data":{"id":"evt-1","event_type":"call.answered","occurred_at":"2026-10-15T12:00:00.000Z",
		"payload":{"call_control_id":"leg-a","call_session_id":"s1","direction":"outgoing","client_state":"abc"}}}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, EventCallAnswered, ev.Type)
	assert.Equal(t, "leg-a", ev.LegID)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "abc", ev.ClientState)
	assert.True(t, ev.IsOutbound())
	assert.Equal(t, 2026, ev.OccurredAt.Year())
}

func TestParseWebhook_FlatShapeWithRecordingList(t *testing.T) {
	body := []byte(`{"event_type":"call.recording.saved","payload":{"call_control_id":"leg-b","recording_urls":["https://r/1.mp3","https://r/2.mp3"]}}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, EventRecordingSaved, ev.Type)
	assert.Equal(t, []string{"https://r/1.mp3", "https://r/2.mp3"}, ev.RecordingURLs)
}

func TestParseWebhook_RecordingMapPrefersMP3(t *testing.T) {
	body := []byte(`{"data":{"event_type":"call.recording.saved","payload":{"call_control_id":"leg-a","recording_urls":{"wav":"https://r/1.wav","mp3":"https://r/1.mp3"}}}}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	require.NotEmpty(t, ev.RecordingURLs)
	assert.Equal(t, "https://r/1.mp3", ev.RecordingURLs[0])
}

func TestParseWebhook_Rejects(t *testing.T) {
	_, err := ParseWebhook([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseWebhook([]byte(`{"data":{"payload":{}}}`))
	assert.ErrorIs(t, err, ErrMissingEventType)
}

func TestEvent_IsOutbound(t *testing.T) {
	assert.True(t, Event{Direction: "outbound"}.IsOutbound())
	assert.False(t, Event{Direction: "incoming"}.IsOutbound())
}

func TestSignatureVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	v, err := NewSignatureVerifier(base64.StdEncoding.EncodeToString(pub), time.Minute)
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)
	v.now = func() time.Time { return now }

	body := []byte(`{"data":{}}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(ts+"|"+string(body))))

	assert.NoError(t, v.Verify(sig, ts, body))
	assert.ErrorIs(t, v.Verify(sig, ts, []byte(`{"data":{"x":1}}`)), ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify("", ts, body), ErrSignatureMissing)

	old := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	assert.ErrorIs(t, v.Verify(sig, old, body), ErrSignatureStale)
}

func TestNewSignatureVerifier_EmptyKeyDisables(t *testing.T) {
	v, err := NewSignatureVerifier("", 0)
	assert.NoError(t, err)
	assert.Nil(t, v)

	_, err = NewSignatureVerifier(base64.StdEncoding.EncodeToString([]byte("short")), 0)
	assert.Error(t, err)
}
