// Package principal carries the authenticated caller, if any, through the gin context.
package principal

import "github.com/gin-gonic/gin"

// ContextKey is the gin context key holding the Principal.
const ContextKey = "principal"

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Set attaches p to the request context.
func Set(c *gin.Context, p Principal) {
	c.Set(ContextKey, p)
}

// FromContext returns the request principal. ok is false when none was attached
// or the attached principal has no id.
func FromContext(c *gin.Context) (Principal, bool) {
	if c == nil {
		return Principal{}, false
	}
	v, exists := c.Get(ContextKey)
	if !exists {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	if !ok || p.ID == "" {
		return Principal{}, false
	}
	return p, true
}
