package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"clean", "GET /api/v1/bookings", "GET /api/v1/bookings"},
		{"forged log line", "mozilla\r\nlevel=error msg=pwned", "mozilla level=error msg=pwned"},
		{"control run collapses", "a\x00\x01\x1Fb", "a b"},
		{"delete char", "a\x7Fb", "a b"},
		{"tab", "a\tb", "a b"},
		{"only controls", "\x00\n\x7F", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForLog(tt.in))
		})
	}
}

func TestSanitizeForLog_Truncates(t *testing.T) {
	got := SanitizeForLog(strings.Repeat("a", MaxLogValueLen+50))
	assert.Len(t, got, MaxLogValueLen)
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/bookings", SanitizePath("/api/v1/bookings"))
	assert.Equal(t, "/api/v1/bookings", SanitizePath("/api/v1/bookings?token=secret"))
	assert.Equal(t, "/api/v1/ bookings", SanitizePath("/api/v1/\nbookings"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", -1))
	assert.Equal(t, "", Truncate("abc", 0))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "caf", Truncate("café", 4))
	assert.Equal(t, "café", Truncate("café", 5))
}
