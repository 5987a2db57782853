package security

import (
	"time"

	"github.com/google/uuid"

	"github.com/wayfarer-erp/backend/internal/threat"
)

// EventType names a security event.
type EventType string

const (
	EventThreatDetected     EventType = "THREAT_DETECTED"
	EventAuthThreshold      EventType = "AUTH_THRESHOLD_EXCEEDED"
	EventSuspiciousIP       EventType = "SUSPICIOUS_IP_THRESHOLD_EXCEEDED"
	EventRateLimitViolation EventType = "RATE_LIMIT_VIOLATION"
)

// SeverityOf is the fixed severity for each event type.
func SeverityOf(t EventType) threat.Severity {
	switch t {
	case EventThreatDetected:
		return threat.SeverityHigh
	case EventAuthThreshold, EventSuspiciousIP:
		return threat.SeverityMedium
	case EventRateLimitViolation:
		return threat.SeverityLow
	}
	return threat.SeverityLow
}

// Event is a write-only security record handed to sinks.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"eventType"`
	Severity  threat.Severity        `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// NewEvent stamps an event with an id, its fixed severity and at.
func NewEvent(t EventType, at time.Time, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Severity:  SeverityOf(t),
		Timestamp: at,
		Payload:   payload,
	}
}

// EventSink consumes security events. Record must not block on I/O.
type EventSink interface {
	Record(e Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event) error

// Record implements EventSink.
func (f EventSinkFunc) Record(e Event) error { return f(e) }

// RequestContext describes the request a threat was seen on.
type RequestContext struct {
	IP        string `json:"ip"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	UserAgent string `json:"userAgent"`
}
