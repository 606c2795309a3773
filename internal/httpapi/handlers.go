package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/auth"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/dialer"
	"voice-orchestrator/internal/feed"
	"voice-orchestrator/internal/rbac"
	"voice-orchestrator/internal/reporting"
	"voice-orchestrator/internal/telephony"
	"voice-orchestrator/pkg/logger"
)

// Subscriber is the live feed as seen by the websocket endpoint.
type Subscriber interface {
	Subscribe(ctx context.Context, f feed.Filter) (<-chan calls.Change, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Calls     *calls.Service
	Processor *calls.Processor
	Setup     dialer.Setup
	Feed      Subscriber
	Reports   *reporting.Service

	// Verifier checks provider webhook signatures. Nil disables verification.
	Verifier *telephony.SignatureVerifier
}

// --- Auth ---

type devTokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IssueDevToken issues a JWT pair without credentials. Routed only outside production.
func (h Handlers) IssueDevToken(c *gin.Context) {
	if h.Auth == nil {
		writeError(c, apperr.NotConfigured("auth"))
		return
	}
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid json"))
		return
	}
	if req.UserID == "" {
		writeError(c, apperr.MissingRequired("user_id"))
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleAgent
	}
	if !rbac.Valid(req.Role) {
		writeError(c, apperr.Validation("unknown role"))
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		writeError(c, apperr.Internal("token issuance failed", err))
		return
	}
	c.JSON(http.StatusOK, pair)
}

// IssueStreamToken trades the caller's access token for a short-lived token that a
// browser can put in the live feed URL.
func (h Handlers) IssueStreamToken(c *gin.Context) {
	if h.Auth == nil {
		writeError(c, apperr.NotConfigured("auth"))
		return
	}
	userID, role := identity(c)
	tok, ttl, err := h.Auth.IssueStream(time.Now(), userID, role)
	if err != nil {
		writeError(c, apperr.Internal("token issuance failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "expires_in": int(ttl / time.Second)})
}

// writeError renders err as {"error": {code, message, details}} with the code's status.
func writeError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("internal error", err)
	}
	status := apperr.HTTPStatus(e.Code)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": e})
}

func identity(c *gin.Context) (userID, role string) {
	id, _ := auth.IdentityFrom(c.Request.Context())
	return id.UserID, id.Role
}

func requestLogger(c *gin.Context) *slog.Logger {
	return logger.FromGin(c)
}
