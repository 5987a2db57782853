package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/wayfarer-erp/backend/internal/principal"
)

func TestClientAddress(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"forwarded-for first hop", "10.0.0.9:5000", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.2"}, "203.0.113.7"},
		{"forwarded-for single", "10.0.0.9:5000", map[string]string{"X-Forwarded-For": "198.51.100.4"}, "198.51.100.4"},
		{"empty forwarded-for falls through", "10.0.0.9:5000", map[string]string{"X-Forwarded-For": " ,", "X-Real-IP": "198.51.100.5"}, "198.51.100.5"},
		{"real ip", "10.0.0.9:5000", map[string]string{"X-Real-IP": "198.51.100.5"}, "198.51.100.5"},
		{"remote addr host", "10.0.0.1:1234", nil, "10.0.0.1"},
		{"ipv6 remote addr", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"raw remote addr without port", "10.0.0.3", nil, "10.0.0.3"},
		{"nothing resolves", "", nil, UnknownClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			c.Request = req

			assert.Equal(t, tt.want, ClientAddress(c))
		})
	}
}

func TestClientAddress_NilRequest(t *testing.T) {
	assert.Equal(t, UnknownClient, ClientAddress(nil))
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, UnknownClient, ClientAddress(c))
}

func TestIdentifyAppendsPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c.Request = req

	assert.Equal(t, "10.0.0.1", Identify(c))
	assert.Equal(t, "10.0.0.1", PrincipalFirst(c))

	principal.Set(c, principal.Principal{ID: "agent-42", Email: "agent@example.com"})
	assert.Equal(t, "10.0.0.1:agent-42", Identify(c))
	assert.Equal(t, "user:agent-42", PrincipalFirst(c))
}

func TestIdentifyIgnoresPrincipalWithoutID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c.Request = req
	principal.Set(c, principal.Principal{Email: "anon@example.com"})

	assert.Equal(t, "10.0.0.1", Identify(c))
}
