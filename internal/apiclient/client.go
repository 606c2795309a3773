// Package apiclient lets the power dialer drive the API from outside the server: it
// starts lead-first calls, reads dialer setup and follows the live call feed.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/dialer"
)

type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client calls the HTTP API with a bearer access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	wsDialer   *websocket.Dialer
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: timeout},
		wsDialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// StartLeadFirst starts a lead-first call. The server identifies the user from the
// token, so req.UserID is not sent. A transport failure is NetworkAmbiguous: the
// server may have placed the call.
func (c *Client) StartLeadFirst(ctx context.Context, req calls.LeadFirstRequest) (calls.StartResult, error) {
	var out calls.StartResult
	if err := c.do(ctx, http.MethodPost, "/v1/calls/lead-first", req, &out); err != nil {
		return calls.StartResult{}, err
	}
	return out, nil
}

// Resolve reads the caller's dialer setup. userID is implied by the token.
func (c *Client) Resolve(ctx context.Context, userID string) (dialer.SetupInfo, error) {
	var out dialer.SetupInfo
	if err := c.do(ctx, http.MethodGet, "/v1/dialer/setup", nil, &out); err != nil {
		return dialer.SetupInfo{}, err
	}
	return out, nil
}

// Me returns the user id the token belongs to.
func (c *Client) Me(ctx context.Context) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, &out); err != nil {
		return "", err
	}
	if out.UserID == "" {
		return "", errors.New("apiclient: token has no user id")
	}
	return out.UserID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.NetworkAmbiguous(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return decodeError(resp.StatusCode, b)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds the coded error the server rendered. Anything else, such as a
// proxy page or a plain string error, becomes INTERNAL_ERROR with the status.
func decodeError(status int, body []byte) error {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var coded apperr.Error
		if err := json.Unmarshal(env.Error, &coded); err == nil && coded.Code != "" {
			return &coded
		}
		var msg string
		if err := json.Unmarshal(env.Error, &msg); err == nil && msg != "" {
			return apperr.Internal(fmt.Sprintf("api returned %d", status), errors.New(msg))
		}
	}
	return apperr.Internal(fmt.Sprintf("api returned %d", status), errors.New(strings.TrimSpace(string(body))))
}
