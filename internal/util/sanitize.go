// Package util holds small helpers shared by the logging paths.
package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLogValueLen bounds user-controlled values written to logs.
const MaxLogValueLen = 200

var controlRun = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog collapses every run of control characters (newlines and
// tabs included) into a single space and truncates to MaxLogValueLen bytes,
// so request data cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	return Truncate(controlRun.ReplaceAllString(s, " "), MaxLogValueLen)
}

// SanitizePath drops the query string before sanitizing; queries carry
// tokens and search terms that do not belong in logs.
func SanitizePath(p string) string {
	if i := strings.IndexByte(p, '?'); i != -1 {
		p = p[:i]
	}
	return SanitizeForLog(p)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
