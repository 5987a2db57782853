// Package security tracks suspicious clients and failed authentication and
// raises escalation events when configured thresholds are crossed.
package security

import (
	"sync"
	"time"

	"github.com/wayfarer-erp/backend/internal/logger"
	"github.com/wayfarer-erp/backend/internal/metrics"
	"github.com/wayfarer-erp/backend/internal/threat"
	"github.com/wayfarer-erp/backend/internal/util"
)

// Config bounds and tunes a Tracker.
type Config struct {
	FailedAuthThreshold   int           `yaml:"failed_auth_threshold" validate:"gte=1"`
	SuspiciousIPThreshold int           `yaml:"suspicious_ip_threshold" validate:"gte=1"`
	MaxRecords            int           `yaml:"max_records" validate:"gte=1"`
	RecordTTL             time.Duration `yaml:"record_ttl" validate:"gte=0"`
	MaxReasons            int           `yaml:"max_reasons" validate:"gte=1"`
}

// DefaultConfig returns the stock thresholds and bounds.
func DefaultConfig() Config {
	return Config{
		FailedAuthThreshold:   5,
		SuspiciousIPThreshold: 10,
		MaxRecords:            10000,
		RecordTTL:             24 * time.Hour,
		MaxReasons:            20,
	}
}

// SuspiciousIP accumulates reasons an address was flagged.
type SuspiciousIP struct {
	IP       string    `json:"ip"`
	Count    int       `json:"count"`
	Reasons  []string  `json:"reasons"`
	LastSeen time.Time `json:"lastSeen"`

	alertedAt int
}

// FailedAuth counts failed authentication attempts for a user id or address.
type FailedAuth struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"lastAttempt"`

	alertedAt int
}

// RateLimitViolation counts rejections for one client key.
type RateLimitViolation struct {
	Key      string    `json:"key"`
	IP       string    `json:"ip"`
	Count    int       `json:"count"`
	Profile  string    `json:"profile"`
	LastPath string    `json:"lastPath"`
	LastSeen time.Time `json:"lastSeen"`
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// Tracker holds process-lifetime security counters. All maps are bounded by
// Config.MaxRecords and pruned by age via Prune.
type Tracker struct {
	now  func() time.Time
	sink EventSink

	mu         sync.Mutex
	cfg        Config
	suspicious *ledger[SuspiciousIP]
	failed     *ledger[FailedAuth]
	violations *ledger[RateLimitViolation]
}

// NewTracker creates a tracker that reports events to sink. Zero config
// fields fall back to DefaultConfig.
func NewTracker(cfg Config, sink EventSink, opts ...Option) *Tracker {
	def := DefaultConfig()
	if cfg.FailedAuthThreshold <= 0 {
		cfg.FailedAuthThreshold = def.FailedAuthThreshold
	}
	if cfg.SuspiciousIPThreshold <= 0 {
		cfg.SuspiciousIPThreshold = def.SuspiciousIPThreshold
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	if cfg.MaxReasons <= 0 {
		cfg.MaxReasons = def.MaxReasons
	}
	if sink == nil {
		sink = EventSinkFunc(func(Event) error { return nil })
	}

	t := &Tracker{
		now:        time.Now,
		sink:       sink,
		cfg:        cfg,
		suspicious: newLedger[SuspiciousIP](cfg.MaxRecords),
		failed:     newLedger[FailedAuth](cfg.MaxRecords),
		violations: newLedger[RateLimitViolation](cfg.MaxRecords),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the current thresholds and bounds.
func (t *Tracker) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// SetThresholds changes the escalation thresholds. Records already past the
// old threshold can alert once more against the new one.
func (t *Tracker) SetThresholds(failedAuth, suspiciousIP int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if failedAuth > 0 {
		t.cfg.FailedAuthThreshold = failedAuth
	}
	if suspiciousIP > 0 {
		t.cfg.SuspiciousIPThreshold = suspiciousIP
	}
}

// TrackFailedAuth counts a failed login keyed by userID, or by ip when the
// user is unknown. It reports whether this call raised AUTH_THRESHOLD_EXCEEDED.
func (t *Tracker) TrackFailedAuth(ip, userID string) bool {
	key := userID
	if key == "" {
		key = ip
	}
	now := t.now()

	t.mu.Lock()
	rec, _ := t.failed.upsert(key, now)
	rec.Key = key
	rec.Count++
	rec.LastAttempt = now
	threshold := t.cfg.FailedAuthThreshold
	escalate := rec.Count >= threshold && rec.alertedAt != threshold
	if escalate {
		rec.alertedAt = threshold
	}
	count := rec.Count
	t.mu.Unlock()

	if escalate {
		t.emit(NewEvent(EventAuthThreshold, now, map[string]interface{}{
			"key":       key,
			"ip":        ip,
			"userId":    userID,
			"count":     count,
			"threshold": threshold,
		}))
	}
	return escalate
}

// TrackSuspiciousIP flags ip for reason. It reports whether this call raised
// SUSPICIOUS_IP_THRESHOLD_EXCEEDED.
func (t *Tracker) TrackSuspiciousIP(ip, reason string) bool {
	now := t.now()

	t.mu.Lock()
	rec, _ := t.suspicious.upsert(ip, now)
	rec.IP = ip
	rec.Count++
	rec.Reasons = append(rec.Reasons, reason)
	if extra := len(rec.Reasons) - t.cfg.MaxReasons; extra > 0 {
		rec.Reasons = append([]string(nil), rec.Reasons[extra:]...)
	}
	rec.LastSeen = now
	threshold := t.cfg.SuspiciousIPThreshold
	escalate := rec.Count >= threshold && rec.alertedAt != threshold
	if escalate {
		rec.alertedAt = threshold
	}
	count := rec.Count
	reasons := append([]string(nil), rec.Reasons...)
	t.mu.Unlock()

	if escalate {
		t.emit(NewEvent(EventSuspiciousIP, now, map[string]interface{}{
			"ip":        ip,
			"count":     count,
			"threshold": threshold,
			"reasons":   reasons,
		}))
	}
	return escalate
}

// RecordThreats emits one THREAT_DETECTED event for a non-empty match list.
func (t *Tracker) RecordThreats(matches []threat.Match, req RequestContext) bool {
	if len(matches) == 0 {
		return false
	}
	t.emit(NewEvent(EventThreatDetected, t.now(), map[string]interface{}{
		"threats":   append([]threat.Match(nil), matches...),
		"ip":        req.IP,
		"url":       util.SanitizeForLog(req.URL),
		"method":    req.Method,
		"userAgent": util.SanitizeForLog(req.UserAgent),
	}))
	return true
}

// RecordRateLimitViolation counts a rejection for key and emits
// RATE_LIMIT_VIOLATION.
func (t *Tracker) RecordRateLimitViolation(key, ip, profile, path string) {
	now := t.now()

	t.mu.Lock()
	rec, _ := t.violations.upsert(key, now)
	rec.Key = key
	rec.IP = ip
	rec.Count++
	rec.Profile = profile
	rec.LastPath = path
	rec.LastSeen = now
	count := rec.Count
	t.mu.Unlock()

	t.emit(NewEvent(EventRateLimitViolation, now, map[string]interface{}{
		"key":     key,
		"ip":      ip,
		"profile": profile,
		"path":    util.SanitizePath(path),
		"count":   count,
	}))
}

// Prune drops records idle for longer than RecordTTL. A zero TTL disables it.
func (t *Tracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.RecordTTL <= 0 {
		return 0
	}
	cutoff := t.now().Add(-t.cfg.RecordTTL)
	return t.suspicious.prune(cutoff) + t.failed.prune(cutoff) + t.violations.prune(cutoff)
}

// Reset forgets every record.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suspicious.reset()
	t.failed.reset()
	t.violations.reset()
}

// Snapshot copies all records in insertion order under one lock.
func (t *Tracker) Snapshot() (suspicious []SuspiciousIP, failed []FailedAuth, violations []RateLimitViolation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	suspicious = t.suspicious.values()
	for i := range suspicious {
		suspicious[i].Reasons = append([]string(nil), suspicious[i].Reasons...)
	}
	return suspicious, t.failed.values(), t.violations.values()
}

func (t *Tracker) emit(e Event) {
	metrics.IncSecurityEvent(string(e.Type))
	defer func() {
		if r := recover(); r != nil {
			logger.Component("security").WithField("event_type", e.Type).Warnf("event sink panic: %v", r)
		}
	}()
	if err := t.sink.Record(e); err != nil {
		metrics.IncSinkDropped("security_events")
		logger.Component("security").WithError(err).WithField("event_type", e.Type).Warn("security event dropped")
	}
}
