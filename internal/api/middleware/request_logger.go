package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wayfarer-erp/backend/internal/ratelimit"
	"github.com/wayfarer-erp/backend/internal/util"
)

// RequestLogger logs basic request information along with the request_id.
// Rate limited responses are logged at warn level.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    util.SanitizePath(c.Request.URL.Path),
			"latency": time.Since(start).String(),
			"client":  ratelimit.ClientAddress(c),
		}
		if remaining := c.Writer.Header().Get(ratelimit.HeaderRemaining); remaining != "" {
			fields["ratelimit_remaining"] = remaining
		}
		entry := GetRequestLogger(c).WithFields(fields)
		if c.Writer.Status() >= 400 {
			entry.Warn("handled request")
			return
		}
		entry.Info("handled request")
	}
}
