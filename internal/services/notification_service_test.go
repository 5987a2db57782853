package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-erp/backend/internal/security"
)

type sent struct {
	url string
	msg string
}

func TestNotificationService_SendsAndThrottles(t *testing.T) {
	var got []sent
	svc, err := NewNotificationService("discord://token@12345", time.Hour, WithSendFunc(func(url, msg string) error {
		got = append(got, sent{url, msg})
		return nil
	}))
	require.NoError(t, err)
	assert.True(t, svc.Enabled())

	ev := security.NewEvent(security.EventSuspiciousIP, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), map[string]interface{}{"ip": "5.6.7.8", "count": 10})
	require.NoError(t, svc.Record(ev))
	assert.ErrorIs(t, svc.Record(ev), ErrNotificationThrottled)

	require.Len(t, got, 1)
	assert.Equal(t, "discord://token@12345", got[0].url)
	assert.Equal(t, "[MEDIUM] SUSPICIOUS_IP_THRESHOLD_EXCEEDED at 2026-03-01T12:00:00Z\ncount: 10\nip: 5.6.7.8", got[0].msg)
}

func TestNotificationService_Disabled(t *testing.T) {
	calls := 0
	svc, err := NewNotificationService("  ", 0, WithSendFunc(func(string, string) error {
		calls++
		return nil
	}))
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.Record(security.NewEvent(security.EventThreatDetected, time.Now(), nil)))
	assert.Zero(t, calls)
}

func TestNotificationService_Unthrottled(t *testing.T) {
	calls := 0
	svc, err := NewNotificationService("slack://hook", 0, WithSendFunc(func(string, string) error {
		calls++
		return errors.New("unreachable")
	}))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Error(t, svc.Record(security.NewEvent(security.EventAuthThreshold, time.Now(), nil)))
	}
	assert.Equal(t, 3, calls)
}

func TestNewNotificationService_RejectsUnknownScheme(t *testing.T) {
	_, err := NewNotificationService("carrierpigeon://coop", time.Minute)
	assert.Error(t, err)

	svc, err := NewNotificationService("", time.Minute)
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
}
