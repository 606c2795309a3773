package rbac

import (
	"github.com/gin-gonic/gin"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/auth"
)

// RequireUser enforces that an authenticated user id is in context.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.UserID(c.Request.Context()); err != nil {
			abort(c, apperr.Unauthorized("user_id required"))
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows the listed roles; admin passes every check.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			abort(c, apperr.Unauthorized("role required"))
			return
		}
		if _, ok := set[role]; !ok && !IsAdmin(role) {
			abort(c, apperr.Forbidden("role "+role+" may not use this endpoint"))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, e *apperr.Error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(e.Code), gin.H{"error": e})
}
