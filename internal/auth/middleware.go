package auth

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/pkg/logger"
)

const bearerPrefix = "Bearer "

// QueryTokenParam carries a stream token on websocket upgrades, where browsers cannot
// set headers.
const QueryTokenParam = "access_token"

// RequireAccessToken verifies a bearer access token and puts the identity on the request
// context. Role checks belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return requireToken(m, false)
}

// RequireAccessTokenOrQuery also accepts a stream token in the access_token query
// parameter. Access tokens are never read from the URL.
func RequireAccessTokenOrQuery(m *Manager) gin.HandlerFunc {
	return requireToken(m, true)
}

func requireToken(m *Manager, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, typ := bearer(c.GetHeader("Authorization")), TokenTypeAccess
		if tok == "" && allowQuery {
			tok, typ = c.Query(QueryTokenParam), TokenTypeStream
		}
		if tok == "" {
			abort(c, apperr.Unauthorized("missing bearer token"))
			return
		}

		claims, err := m.Verify(tok, typ, time.Now())
		if err != nil {
			abort(c, apperr.Unauthorized("invalid token"))
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID, claims.Role))
		logger.Enrich(c, logger.FromGin(c).With("user_id", claims.UserID))
		c.Next()
	}
}

func bearer(header string) string {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

// abort renders e in the same envelope as handler errors.
func abort(c *gin.Context, e *apperr.Error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(e.Code), gin.H{"error": e})
}
