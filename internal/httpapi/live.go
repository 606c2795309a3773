package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/feed"
)

const (
	livePingInterval = 30 * time.Second
	liveWriteTimeout = 10 * time.Second
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers authenticate with the access_token query parameter; origin is not a
	// credential here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveCalls streams the caller's call-session changes over a websocket, optionally
// narrowed to one contact with ?contact_id=.
func (h Handlers) LiveCalls(c *gin.Context) {
	log := requestLogger(c)
	userID, _ := identity(c)
	contactID := c.Query("contact_id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	changes, err := h.Feed.Subscribe(ctx, feed.Filter{UserID: userID, ContactID: contactID})
	if err != nil {
		writeError(c, apperr.Internal("live feed unavailable", err))
		return
	}

	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("live feed upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	log.Info("live feed connected", "user_id", userID, "contact_id", contactID)

	// Client messages are ignored; a read error means the client left.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return

		case ch, ok := <-changes:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(ch); err != nil {
				log.Debug("live feed write failed", "err", err)
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		}
	}
}
