package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelnyxProvider_CreateCall(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calls", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"call_control_id":"v3:leg-a","call_session_id":"sess-1","call_leg_id":"leg-ref"}}`))
	}))
	defer srv.Close()

	p := NewTelnyxProvider(TelnyxConfig{APIKey: "key-1", ConnectionID: "conn-1", BaseURL: srv.URL})
	res, err := p.CreateCall(context.Background(), CreateCallRequest{
		To:             "+16155550100",
		From:           "+16155550200",
		ClientState:    "b64",
		TimeoutSeconds: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "v3:leg-a", res.LegID)
	assert.Equal(t, "sess-1", res.SessionID)

	assert.Equal(t, "conn-1", got["connection_id"])
	assert.Equal(t, "+16155550100", got["to"])
	assert.Equal(t, "+16155550200", got["from"])
	assert.Equal(t, "b64", got["client_state"])
	assert.EqualValues(t, 30, got["timeout_secs"])
}

func TestTelnyxProvider_RejectedResponseIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"10015","title":"Invalid value","detail":"The 'to' number is invalid"}]}`))
	}))
	defer srv.Close()

	p := NewTelnyxProvider(TelnyxConfig{APIKey: "k", ConnectionID: "c", BaseURL: srv.URL})
	_, err := p.CreateCall(context.Background(), CreateCallRequest{To: "+1", From: "+1"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "The 'to' number is invalid", apiErr.Detail)
}

func TestTelnyxProvider_NetworkFailureIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	p := NewTelnyxProvider(TelnyxConfig{APIKey: "k", ConnectionID: "c", BaseURL: base})
	_, err := p.CreateCall(context.Background(), CreateCallRequest{To: "+1", From: "+1"})
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestTelnyxProvider_DialOnLeg(t *testing.T) {
	var path string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"result":"ok"}}`))
	}))
	defer srv.Close()

	p := NewTelnyxProvider(TelnyxConfig{APIKey: "k", ConnectionID: "c", BaseURL: srv.URL})
	err := p.DialOnLeg(context.Background(), DialRequest{
		LegID:          "v3:leg/a",
		To:             "+16155550100",
		From:           "+16155550200",
		TimeoutSeconds: 45,
		Record:         true,
		RingbackURL:    "https://example.test/ring.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "/calls/v3:leg%2Fa/actions/transfer", path)
	assert.EqualValues(t, 45, got["timeout_secs"])
	assert.Equal(t, "record-from-answer", got["record"])
	assert.Equal(t, "https://example.test/ring.mp3", got["audio_url"])
}

func TestTelnyxProvider_NotConfigured(t *testing.T) {
	p := NewTelnyxProvider(TelnyxConfig{})
	assert.False(t, p.Configured())

	_, err := p.CreateCall(context.Background(), CreateCallRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, p.DialOnLeg(context.Background(), DialRequest{LegID: "x"}), ErrNotConfigured)
}
