package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/containrrr/shoutrrr"
	"golang.org/x/time/rate"

	"github.com/wayfarer-erp/backend/internal/security"
)

// ErrNotificationThrottled is returned when an alert is dropped by the rate limiter.
var ErrNotificationThrottled = errors.New("notification throttled")

// NotificationService pushes security escalations to an external channel via
// a Shoutrrr URL (discord://, slack://, smtp://, ...).
type NotificationService struct {
	url     string
	limiter *rate.Limiter
	send    func(url, message string) error
}

// NotificationOption customizes a NotificationService.
type NotificationOption func(*NotificationService)

// WithSendFunc replaces the Shoutrrr transport.
func WithSendFunc(fn func(url, message string) error) NotificationOption {
	return func(s *NotificationService) { s.send = fn }
}

// NewNotificationService validates rawURL and allows one alert per every
// (burst 1). An empty URL yields a service that drops everything silently;
// every <= 0 disables throttling.
func NewNotificationService(rawURL string, every time.Duration, opts ...NotificationOption) (*NotificationService, error) {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	s := &NotificationService{
		url:     strings.TrimSpace(rawURL),
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.send == nil {
		if s.url != "" {
			if _, err := shoutrrr.CreateSender(s.url); err != nil {
				return nil, fmt.Errorf("invalid notification url: %w", err)
			}
		}
		s.send = shoutrrr.Send
	}
	return s, nil
}

// Enabled reports whether a destination is configured.
func (s *NotificationService) Enabled() bool { return s.url != "" }

// Record implements security.EventSink.
func (s *NotificationService) Record(e security.Event) error {
	if !s.Enabled() {
		return nil
	}
	if !s.limiter.Allow() {
		return ErrNotificationThrottled
	}
	if err := s.send(s.url, FormatAlert(e)); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// FormatAlert renders e as a short plain-text message.
func FormatAlert(e security.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s at %s", e.Severity, e.Type, e.Timestamp.UTC().Format(time.RFC3339))
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, e.Payload[k])
	}
	return b.String()
}
