package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfarer_ratelimit_decisions_total",
		Help: "Rate limit decisions by profile and outcome",
	}, []string{"profile", "outcome"})
	rateLimitEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wayfarer_ratelimit_entries",
		Help: "Live rate limit window entries per profile after the last sweep",
	}, []string{"profile"})
	threatMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfarer_threat_matches_total",
		Help: "Threat pattern matches by kind and request surface",
	}, []string{"kind", "source"})
	threatBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wayfarer_threat_blocked_total",
		Help: "Requests rejected because of threat matches",
	})
	securityEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfarer_security_events_total",
		Help: "Security events emitted by type",
	}, []string{"type"})
	sinkDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wayfarer_sink_dropped_total",
		Help: "Records dropped by fire-and-forget sinks",
	}, []string{"sink"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		rateLimitDecisions,
		rateLimitEntries,
		threatMatches,
		threatBlocked,
		securityEvents,
		sinkDropped,
	)
}

// ObserveDecision counts one rate limit decision.
func ObserveDecision(profile string, admitted bool) {
	outcome := "rejected"
	if admitted {
		outcome = "admitted"
	}
	rateLimitDecisions.WithLabelValues(profile, outcome).Inc()
}

// SetEntries records the store size for a profile.
func SetEntries(profile string, n int) {
	rateLimitEntries.WithLabelValues(profile).Set(float64(n))
}

// IncThreatMatch counts one rule match.
func IncThreatMatch(kind, source string) { threatMatches.WithLabelValues(kind, source).Inc() }

// IncThreatBlocked increments the blocked requests counter.
func IncThreatBlocked() { threatBlocked.Inc() }

// IncSecurityEvent counts an emitted security event.
func IncSecurityEvent(eventType string) { securityEvents.WithLabelValues(eventType).Inc() }

// IncSinkDropped counts a record a sink could not accept.
func IncSinkDropped(sink string) { sinkDropped.WithLabelValues(sink).Inc() }
