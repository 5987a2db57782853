package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wayfarer-erp/backend/internal/models"
	"github.com/wayfarer-erp/backend/internal/security"
	"github.com/wayfarer-erp/backend/internal/threat"
)

// SecurityEventService persists security events for audit.
type SecurityEventService struct {
	db *gorm.DB
}

// NewSecurityEventService returns a SecurityEventService using the provided DB
func NewSecurityEventService(db *gorm.DB) *SecurityEventService {
	return &SecurityEventService{db: db}
}

// Record stores e. It implements security.EventSink and is meant to run on the
// dispatcher goroutine, not the request path.
func (s *SecurityEventService) Record(e security.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	row := &models.SecurityEvent{
		UUID:       e.ID,
		EventType:  string(e.Type),
		Severity:   string(e.Severity),
		Payload:    string(payload),
		OccurredAt: e.Timestamp,
	}
	if ip, ok := e.Payload["ip"].(string); ok {
		row.IP = ip
	}
	if row.UUID == "" {
		row.UUID = uuid.NewString()
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now()
	}
	return s.db.Create(row).Error
}

// EventFilter narrows List results. Zero values match everything.
type EventFilter struct {
	Type        string
	IP          string
	MinSeverity threat.Severity
	Limit       int
}

// List returns recent security events, ordered by occurred_at desc
func (s *SecurityEventService) List(f EventFilter) ([]models.SecurityEvent, error) {
	var res []models.SecurityEvent
	q := s.db.Order("occurred_at desc").Order("id desc")
	if f.Type != "" {
		q = q.Where("event_type = ?", f.Type)
	}
	if f.IP != "" {
		q = q.Where("ip = ?", f.IP)
	}
	if f.MinSeverity != "" {
		q = q.Where("severity IN ?", severitiesFrom(f.MinSeverity))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// Purge deletes events that occurred before cutoff.
func (s *SecurityEventService) Purge(cutoff time.Time) (int64, error) {
	res := s.db.Where("occurred_at < ?", cutoff).Delete(&models.SecurityEvent{})
	return res.RowsAffected, res.Error
}

func severitiesFrom(min threat.Severity) []string {
	var out []string
	for _, s := range []threat.Severity{threat.SeverityLow, threat.SeverityMedium, threat.SeverityHigh, threat.SeverityCritical} {
		if s.Rank() >= min.Rank() {
			out = append(out, string(s))
		}
	}
	return out
}
