package middleware

import (
	"net/http"
	"strings"

	"github.com/wayfarer-erp/backend/internal/util"
)

const redacted = "<redacted>"

// Headers that identify the caller or carry credentials by name alone.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
	"x-forwarded-for":     {},
	"x-real-ip":           {},
}

// Any header whose name contains one of these is treated as a credential,
// which covers X-Api-Key, X-Partner-Key, X-Auth-Token and similar.
var sensitiveFragments = []string{"key", "token", "secret", "password", "session"}

func isSensitiveHeader(name string) bool {
	name = strings.ToLower(name)
	if _, ok := sensitiveHeaders[name]; ok {
		return true
	}
	for _, frag := range sensitiveFragments {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// SanitizeHeaders copies h for logging: credential headers are redacted and
// the rest pass through util.SanitizeForLog.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if isSensitiveHeader(k) {
			out[k] = []string{redacted}
			continue
		}
		clean := make([]string, len(vals))
		for i, v := range vals {
			clean[i] = util.SanitizeForLog(v)
		}
		out[k] = clean
	}
	return out
}
