package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-orchestrator/internal/auth"
	"voice-orchestrator/internal/httpapi"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/internal/rbac"
)

type routeDeps struct {
	handlers  httpapi.Handlers
	auth      *auth.Manager
	health    func(ctx context.Context) error
	devTokens bool
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := d.health(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	// Provider webhooks. Authenticated by signature when TELNYX_PUBLIC_KEY is set.
	r.POST("/webhooks/telnyx", h.TelnyxWebhook)

	v1 := r.Group("/v1")

	if d.devTokens {
		v1.POST("/auth/token", h.IssueDevToken)
	}

	// Browsers cannot set headers on websocket upgrades; they pass a stream token
	// from POST /v1/calls/live/token instead.
	live := v1.Group("/calls/live")
	live.Use(auth.RequireAccessTokenOrQuery(d.auth), rbac.RequireUser())
	live.GET("", h.LiveCalls)

	api := v1.Group("")
	api.Use(auth.RequireAccessToken(d.auth), rbac.RequireUser())
	api.Use(rbac.RequireAnyRole(rbac.CallRoles...))
	{
		api.POST("/calls/agent-first", h.StartAgentFirst)
		api.POST("/calls/lead-first", h.StartLeadFirst)
		api.GET("/calls", h.ListCalls)
		api.GET("/calls/summary", h.CallsSummary)
		api.POST("/calls/live/token", h.IssueStreamToken)
		api.GET("/dialer/setup", h.DialerSetup)

		api.GET("/me", func(c *gin.Context) {
			id, _ := auth.IdentityFrom(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": id.Role})
		})
	}
}
