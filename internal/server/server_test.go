package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-erp/backend/internal/api/middleware"
	"github.com/wayfarer-erp/backend/internal/api/routes"
	"github.com/wayfarer-erp/backend/internal/cerberus"
	"github.com/wayfarer-erp/backend/internal/config"
	"github.com/wayfarer-erp/backend/internal/security"
)

func testDeps() routes.Deps {
	cfg := config.Config{
		Environment: "production",
		HTTPPort:    "0",
		Security: config.SecurityConfig{
			ThreatMode: cerberus.ModeMonitor,
			Routes:     config.DefaultRoutes(),
		},
	}
	cerb := cerberus.New(cfg.Security, security.NewTracker(security.Config{}, nil), nil)
	return routes.Deps{
		Config:   cfg,
		Cerberus: cerb,
		Profiles: routes.NewProfiles(cfg.Security, cerb.LimitCallback()),
	}
}

func TestNew(t *testing.T) {
	s, err := New(testDeps())
	require.NoError(t, err)
	assert.Equal(t, gin.ReleaseMode, gin.Mode())

	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"route not found"}`, w.Body.String())
}

func TestNew_RateLimitsUnmatchedRoutes(t *testing.T) {
	s, err := New(testDeps())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"), "bound prefixes are limited even without a handler")
}

func TestRun_StopsHooksOnCancel(t *testing.T) {
	s, err := New(testDeps())
	require.NoError(t, err)

	var order []string
	s.OnStop(func(context.Context) error {
		order = append(order, "sweeper")
		return nil
	})
	s.OnStop(func(context.Context) error {
		order = append(order, "sink")
		return errors.New("flush failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "flush failed")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"sweeper", "sink"}, order)
}
