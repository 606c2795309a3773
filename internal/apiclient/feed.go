package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/feed"
)

const (
	feedBuffer   = 64
	readDeadline = 60 * time.Second
)

// Subscribe follows the live call feed over a websocket. The user comes from the
// token; f.UserID is not sent. The channel closes when ctx ends or the server hangs up.
func (c *Client) Subscribe(ctx context.Context, f feed.Filter) (<-chan calls.Change, error) {
	u, err := c.feedURL(f.ContactID)
	if err != nil {
		return nil, err
	}
	// A non-browser client can send the access token as a header; stream tokens are
	// only needed where headers cannot be set.
	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	conn, _, err := c.wsDialer.DialContext(ctx, u, header)
	if err != nil {
		return nil, fmt.Errorf("apiclient: dial live feed: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	out := make(chan calls.Change, feedBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		defer close(done)
		for {
			var ch calls.Change
			if err := conn.ReadJSON(&ch); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		case <-done:
		}
		conn.Close()
	}()

	return out, nil
}

func (c *Client) feedURL(contactID string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/calls/live")
	if err != nil {
		return "", fmt.Errorf("apiclient: bad base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	if contactID != "" {
		q.Set("contact_id", contactID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
