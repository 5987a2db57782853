package ratelimit

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-erp/backend/internal/principal"
)

// UnknownClient is the key used when no address source resolves.
const UnknownClient = "unknown"

// ClientAddress resolves the caller address in this order: first hop of
// X-Forwarded-For, X-Real-IP, host part of RemoteAddr, raw RemoteAddr. It
// returns UnknownClient when nothing resolves.
func ClientAddress(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return UnknownClient
	}
	r := c.Request

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}

	if raw := strings.TrimSpace(r.RemoteAddr); raw != "" {
		return raw
	}

	return UnknownClient
}

// Identify derives the client key: the resolved address, suffixed with
// ":<principal id>" when the request carries an authenticated principal.
func Identify(c *gin.Context) string {
	addr := ClientAddress(c)
	if p, ok := principal.FromContext(c); ok {
		return addr + ":" + p.ID
	}
	return addr
}

// PrincipalFirst keys authenticated callers by principal id alone and falls
// back to Identify otherwise.
func PrincipalFirst(c *gin.Context) string {
	if p, ok := principal.FromContext(c); ok {
		return "user:" + p.ID
	}
	return Identify(c)
}
