package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/telephony"
)

const maxWebhookBody = 1 << 20

// TelnyxWebhook applies a provider call event.
//
// Anything that is not a store failure is acknowledged with 200: the provider retries
// non-2xx answers, and retrying an undecodable or unknown event cannot help.
func (h Handlers) TelnyxWebhook(c *gin.Context) {
	log := requestLogger(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.Verifier != nil {
		sig := c.GetHeader(telephony.HeaderSignature)
		ts := c.GetHeader(telephony.HeaderTimestamp)
		if err := h.Verifier.Verify(sig, ts, body); err != nil {
			log.Warn("webhook signature rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	ev, err := telephony.ParseWebhook(body)
	if err != nil {
		log.Warn("webhook payload undecodable, acknowledged", "err", apperr.EventDecode(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.Processor.Handle(c.Request.Context(), ev); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event not applied"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
