package logger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ginKey          = "logger"
)

// Middleware assigns a request id, stores a request-scoped logger and logs one summary
// line per request. Paths in quiet (probes, scrapes) are summarized at debug level.
func Middleware(l *slog.Logger, quiet ...string) gin.HandlerFunc {
	quietSet := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietSet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)
		Enrich(c, l.With("request_id", rid))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		// Handlers and auth may have added attributes (user_id, call_id).
		reqLogger := FromGin(c)
		msg := "request"
		if status == http.StatusSwitchingProtocols {
			msg = "stream closed"
		}
		switch _, isQuiet := quietSet[path]; {
		case len(c.Errors) > 0:
			reqLogger.Error(msg, append(attrs, "errors", c.Errors.String())...)
		case isQuiet:
			reqLogger.Debug(msg, attrs...)
		default:
			reqLogger.Info(msg, attrs...)
		}
	}
}

// Enrich makes l the request-scoped logger for the rest of the chain, both on the gin
// context and on the request context.
func Enrich(c *gin.Context, l *slog.Logger) {
	c.Set(ginKey, l)
	c.Request = c.Request.WithContext(With(c.Request.Context(), l))
}

// FromGin pulls the request-scoped logger from the gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
