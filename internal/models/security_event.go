package models

import (
	"time"
)

// SecurityEvent stores an escalation emitted by the defense layer so it can be
// audited and surfaced on the security dashboard.
type SecurityEvent struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UUID       string    `json:"uuid" gorm:"uniqueIndex"`
	EventType  string    `json:"event_type" gorm:"index"`
	Severity   string    `json:"severity" gorm:"index"`
	IP         string    `json:"ip" gorm:"index"`
	Payload    string    `json:"payload" gorm:"type:text"` // JSON
	OccurredAt time.Time `json:"occurred_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
}
