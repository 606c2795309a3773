package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/reporting"
)

// StartAgentFirst rings the agent's phone; the lead is dialed once the agent answers.
func (h Handlers) StartAgentFirst(c *gin.Context) {
	var req calls.AgentFirstRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid json"))
		return
	}
	req.UserID, req.Role = identity(c)
	req.IP = c.ClientIP()

	res, err := h.Calls.StartAgentFirst(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// StartLeadFirst rings the lead with the caller id chosen by the client.
func (h Handlers) StartLeadFirst(c *gin.Context) {
	var req calls.LeadFirstRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("invalid json"))
		return
	}
	req.UserID, req.Role = identity(c)
	req.IP = c.ClientIP()

	res, err := h.Calls.StartLeadFirst(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListCalls returns the caller's call log, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	userID, _ := identity(c)

	sessions, err := h.Calls.ListCallLogs(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": sessions})
}

// DialerSetup returns the agent phone and caller id a dialer run will use.
func (h Handlers) DialerSetup(c *gin.Context) {
	userID, _ := identity(c)
	info, err := h.Setup.Resolve(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// CallsSummary aggregates the caller's sessions started in [from, to). Both bounds are
// RFC 3339; the default window is the last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		writeError(c, apperr.NotConfigured("reporting"))
		return
	}
	to := time.Now().UTC()
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, apperr.Validation("to must be an RFC 3339 timestamp"))
			return
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, apperr.Validation("from must be an RFC 3339 timestamp"))
			return
		}
		from = t
	}
	userID, _ := identity(c)

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		UserID: userID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
