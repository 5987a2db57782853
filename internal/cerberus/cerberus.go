// Package cerberus ties the threat scanner, rate limiters and security
// tracker together into gin middleware.
package cerberus

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-erp/backend/internal/config"
	"github.com/wayfarer-erp/backend/internal/logger"
	"github.com/wayfarer-erp/backend/internal/metrics"
	"github.com/wayfarer-erp/backend/internal/ratelimit"
	"github.com/wayfarer-erp/backend/internal/security"
	"github.com/wayfarer-erp/backend/internal/threat"
	"github.com/wayfarer-erp/backend/internal/util"
)

// Threat modes.
const (
	ModeDisabled = "disabled"
	ModeMonitor  = "monitor"
	ModeBlock    = "block"
)

// ReasonRateLimited is the suspicious-IP reason recorded for rate limit rejections.
const ReasonRateLimited = "rate_limit_exceeded"

// Cerberus provides a lightweight facade for security checks (threat scan,
// rate limit violations, failed auth).
type Cerberus struct {
	cfg      config.SecurityConfig
	scanner  *threat.Scanner
	tracker  *security.Tracker
	reporter *security.Reporter
}

// New creates a new Cerberus instance. A nil scanner uses the default rules.
func New(cfg config.SecurityConfig, tracker *security.Tracker, scanner *threat.Scanner) *Cerberus {
	if scanner == nil {
		scanner = threat.NewScanner()
	}
	return &Cerberus{
		cfg:      cfg,
		scanner:  scanner,
		tracker:  tracker,
		reporter: security.NewReporter(tracker),
	}
}

// IsEnabled returns whether request scanning is on.
func (c *Cerberus) IsEnabled() bool {
	return c.cfg.ThreatMode != "" && c.cfg.ThreatMode != ModeDisabled
}

// Tracker exposes the shared security tracker.
func (c *Cerberus) Tracker() *security.Tracker { return c.tracker }

// Reporter exposes the report builder over the tracker.
func (c *Cerberus) Reporter() *security.Reporter { return c.reporter }

// Middleware returns a Gin middleware that scans every request when enabled.
// In block mode a request with any match is rejected with 400; in monitor
// mode it is recorded and passed on.
func (c *Cerberus) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !c.IsEnabled() {
			ctx.Next()
			return
		}

		matches := c.scan(ctx)
		if len(matches) == 0 {
			ctx.Next()
			return
		}

		ip := ratelimit.ClientAddress(ctx)
		c.tracker.RecordThreats(matches, security.RequestContext{
			IP:        ip,
			URL:       ctx.Request.RequestURI,
			Method:    ctx.Request.Method,
			UserAgent: ctx.Request.UserAgent(),
		})
		c.tracker.TrackSuspiciousIP(ip, reason(matches))

		fields := map[string]interface{}{
			"source":   "threat_scan",
			"mode":     c.cfg.ThreatMode,
			"ip":       ip,
			"method":   ctx.Request.Method,
			"path":     util.SanitizePath(ctx.Request.URL.Path),
			"kinds":    reason(matches),
			"matches":  len(matches),
			"decision": "monitor",
		}
		if c.cfg.ThreatMode == ModeBlock {
			fields["decision"] = "block"
			logger.Log().WithFields(fields).Warn("threat scan blocked request")
			metrics.IncThreatBlocked()
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "suspicious payload detected"})
			return
		}
		logger.Log().WithFields(fields).Info("threat scan monitored request")
		ctx.Next()
	}
}

// scan never panics into the request path; a failing scan admits the request.
func (c *Cerberus) scan(ctx *gin.Context) (matches []threat.Match) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().WithField("source", "threat_scan").Errorf("threat scan panic: %v", r)
			matches = nil
		}
	}()
	matches = c.scanner.Scan(threat.FromHTTP(ctx.Request, c.cfg.MaxBodyBytes))
	for _, m := range matches {
		metrics.IncThreatMatch(string(m.Kind), string(m.Source))
	}
	return matches
}

// LimitCallback feeds rate limit rejections into the tracker.
func (c *Cerberus) LimitCallback() ratelimit.LimitCallback {
	return ratelimit.LimitCallbackFunc(func(ctx *gin.Context, d ratelimit.Decision) {
		ip := ratelimit.ClientAddress(ctx)
		c.tracker.RecordRateLimitViolation(d.Key, ip, d.Profile, ctx.Request.URL.Path)
		c.tracker.TrackSuspiciousIP(ip, ReasonRateLimited)
	})
}

// TrackFailedAuth records a failed login from the request's client address.
func (c *Cerberus) TrackFailedAuth(ctx *gin.Context, userID string) bool {
	return c.tracker.TrackFailedAuth(ratelimit.ClientAddress(ctx), userID)
}

// reason joins the distinct match kinds in a stable order.
func reason(matches []threat.Match) string {
	seen := make(map[threat.Kind]struct{}, len(matches))
	kinds := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Kind]; ok {
			continue
		}
		seen[m.Kind] = struct{}{}
		kinds = append(kinds, string(m.Kind))
	}
	sort.Strings(kinds)
	return strings.Join(kinds, ",")
}
