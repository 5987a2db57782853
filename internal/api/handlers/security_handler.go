package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-erp/backend/internal/models"
	"github.com/wayfarer-erp/backend/internal/ratelimit"
	"github.com/wayfarer-erp/backend/internal/security"
	"github.com/wayfarer-erp/backend/internal/services"
	"github.com/wayfarer-erp/backend/internal/threat"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventLister reads persisted security events.
type EventLister interface {
	List(f services.EventFilter) ([]models.SecurityEvent, error)
}

// SecurityHandler serves the security dashboard endpoints.
type SecurityHandler struct {
	tracker  *security.Tracker
	reporter *security.Reporter
	profiles *ratelimit.Profiles
	events   EventLister
}

// NewSecurityHandler creates a new SecurityHandler. events may be nil when no
// audit store is configured.
func NewSecurityHandler(tracker *security.Tracker, profiles *ratelimit.Profiles, events EventLister) *SecurityHandler {
	return &SecurityHandler{
		tracker:  tracker,
		reporter: security.NewReporter(tracker),
		profiles: profiles,
		events:   events,
	}
}

// Report returns the current tracker snapshot with recommendations.
func (h *SecurityHandler) Report(c *gin.Context) {
	c.JSON(http.StatusOK, h.reporter.Report())
}

// ListEvents returns persisted security events, newest first.
func (h *SecurityHandler) ListEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event store not configured"})
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	filter := services.EventFilter{
		Type:  c.Query("type"),
		IP:    c.Query("ip"),
		Limit: limit,
	}
	if raw := c.Query("min_severity"); raw != "" {
		sev := threat.Severity(raw)
		if sev.Rank() == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown severity"})
			return
		}
		filter.MinSeverity = sev
	}

	events, err := h.events.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type profileView struct {
	Name     string `json:"name"`
	WindowMs int64  `json:"windowMs"`
	Max      int    `json:"max"`
	Entries  int    `json:"entries"`
}

// ListProfiles describes the configured rate limit profiles.
func (h *SecurityHandler) ListProfiles(c *gin.Context) {
	views := []profileView{}
	h.profiles.Each(func(l *ratelimit.Limiter) {
		cfg := l.Config()
		views = append(views, profileView{
			Name:     l.Name(),
			WindowMs: cfg.Window.Milliseconds(),
			Max:      cfg.Max,
			Entries:  l.Store().Len(),
		})
	})
	c.JSON(http.StatusOK, gin.H{"profiles": views})
}

type resetRequest struct {
	Scope string `json:"scope" binding:"omitempty,oneof=all tracker ratelimit"`
}

// Reset clears tracker records, rate limit windows, or both.
func (h *SecurityHandler) Reset(c *gin.Context) {
	var req resetRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Scope == "" {
		req.Scope = "all"
	}

	if req.Scope == "all" || req.Scope == "tracker" {
		h.tracker.Reset()
	}
	if req.Scope == "all" || req.Scope == "ratelimit" {
		h.profiles.Reset()
	}
	c.JSON(http.StatusOK, gin.H{"reset": req.Scope, "at": time.Now().UTC()})
}
