package security

import "time"

// Report is a point-in-time view of tracker state for dashboards.
type Report struct {
	GeneratedAt         time.Time            `json:"generatedAt"`
	SuspiciousIPs       []SuspiciousIP       `json:"suspiciousIPs"`
	FailedAuth          []FailedAuth         `json:"failedAuth"`
	RateLimitViolations []RateLimitViolation `json:"rateLimitViolations"`
	Recommendations     []string             `json:"recommendations"`
}

const (
	RecommendReviewIPs   = "Review and consider blocking suspicious IP addresses"
	RecommendAccountLock = "Implement account lockout for repeated failed authentication"
	RecommendTuneLimits  = "Review rate limit profiles for clients repeatedly exceeding limits"
	RecommendNoAction    = "No suspicious activity recorded"
)

// Reporter builds reports from a Tracker. It never mutates tracker state.
type Reporter struct {
	tracker *Tracker
}

// NewReporter wraps t.
func NewReporter(t *Tracker) *Reporter {
	return &Reporter{tracker: t}
}

// Report snapshots the tracker.
func (r *Reporter) Report() Report {
	suspicious, failed, violations := r.tracker.Snapshot()
	rep := Report{
		GeneratedAt:         r.tracker.now(),
		SuspiciousIPs:       suspicious,
		FailedAuth:          failed,
		RateLimitViolations: violations,
		Recommendations:     []string{},
	}
	if len(suspicious) > 0 {
		rep.Recommendations = append(rep.Recommendations, RecommendReviewIPs)
	}
	if len(failed) > 0 {
		rep.Recommendations = append(rep.Recommendations, RecommendAccountLock)
	}
	if len(violations) > 0 {
		rep.Recommendations = append(rep.Recommendations, RecommendTuneLimits)
	}
	if len(rep.Recommendations) == 0 {
		rep.Recommendations = append(rep.Recommendations, RecommendNoAction)
	}
	return rep
}
