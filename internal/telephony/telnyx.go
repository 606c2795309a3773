package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTelnyxBaseURL = "https://api.telnyx.com/v2"

// APIError is a non-2xx response from the provider. The request reached the provider and
// was refused, so the side effect is known not to have happened.
type APIError struct {
	StatusCode int
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("telephony: provider error (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("telephony: provider error (%d)", e.StatusCode)
}

var ErrNotConfigured = errors.New("telephony: provider credentials not configured")

type TelnyxConfig struct {
	APIKey       string
	ConnectionID string
	BaseURL      string
	Timeout      time.Duration
}

// TelnyxProvider talks to the Telnyx Call Control v2 REST API with a bearer credential.
type TelnyxProvider struct {
	apiKey       string
	connectionID string
	baseURL      string
	httpClient   *http.Client
}

func NewTelnyxProvider(cfg TelnyxConfig) *TelnyxProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultTelnyxBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TelnyxProvider{
		apiKey:       cfg.APIKey,
		connectionID: cfg.ConnectionID,
		baseURL:      base,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (p *TelnyxProvider) Name() string { return "telnyx" }

func (p *TelnyxProvider) Configured() bool {
	return p.apiKey != "" && p.connectionID != ""
}

type telnyxCreateCall struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`
	ClientState  string `json:"client_state,omitempty"`
	TimeoutSecs  int    `json:"timeout_secs,omitempty"`
}

type telnyxTransfer struct {
	To          string `json:"to"`
	From        string `json:"from"`
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
	ClientState string `json:"client_state,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`
	Record      string `json:"record,omitempty"`
}

func (p *TelnyxProvider) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error) {
	if !p.Configured() {
		return CreateCallResult{}, ErrNotConfigured
	}
	body := telnyxCreateCall{
		ConnectionID: p.connectionID,
		To:           req.To,
		From:         req.From,
		ClientState:  req.ClientState,
		TimeoutSecs:  req.TimeoutSeconds,
	}

	var out struct {
		Data CreateCallResult `json:"data"`
	}
	if err := p.post(ctx, "/calls", body, &out); err != nil {
		return CreateCallResult{}, err
	}
	if out.Data.LegID == "" {
		return CreateCallResult{}, errors.New("telephony: create call response missing call_control_id")
	}
	return out.Data, nil
}

func (p *TelnyxProvider) DialOnLeg(ctx context.Context, req DialRequest) error {
	if !p.Configured() {
		return ErrNotConfigured
	}
	if req.LegID == "" {
		return errors.New("telephony: leg id required")
	}
	body := telnyxTransfer{
		To:          req.To,
		From:        req.From,
		TimeoutSecs: req.TimeoutSeconds,
		ClientState: req.ClientState,
		AudioURL:    req.RingbackURL,
	}
	if req.Record {
		body.Record = "record-from-answer"
	}
	path := "/calls/" + url.PathEscape(req.LegID) + "/actions/transfer"
	return p.post(ctx, path, body, nil)
}

func (p *TelnyxProvider) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telephony: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("telephony: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{StatusCode: resp.StatusCode, Detail: telnyxErrorDetail(b), Body: string(b)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("telephony: decode response: %w", err)
	}
	return nil
}

func telnyxErrorDetail(body []byte) string {
	var e struct {
		Errors []struct {
			Code   string `json:"code"`
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Errors) == 0 {
		return ""
	}
	first := e.Errors[0]
	if first.Detail != "" {
		return first.Detail
	}
	return first.Title
}
