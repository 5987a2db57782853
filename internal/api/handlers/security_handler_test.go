package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-erp/backend/internal/models"
	"github.com/wayfarer-erp/backend/internal/ratelimit"
	"github.com/wayfarer-erp/backend/internal/security"
	"github.com/wayfarer-erp/backend/internal/services"
	"github.com/wayfarer-erp/backend/internal/threat"
)

type stubEvents struct {
	got  services.EventFilter
	rows []models.SecurityEvent
	err  error
}

func (s *stubEvents) List(f services.EventFilter) ([]models.SecurityEvent, error) {
	s.got = f
	return s.rows, s.err
}

func securityRouter(events EventLister) (*gin.Engine, *security.Tracker, *ratelimit.Profiles) {
	gin.SetMode(gin.TestMode)
	tracker := security.NewTracker(security.Config{}, nil)
	profiles := ratelimit.NewProfiles(ratelimit.DefaultConfig())
	h := NewSecurityHandler(tracker, profiles, events)

	r := gin.New()
	r.GET("/security/report", h.Report)
	r.GET("/security/events", h.ListEvents)
	r.GET("/security/profiles", h.ListProfiles)
	r.POST("/security/reset", h.Reset)
	return r, tracker, profiles
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHandler_Report(t *testing.T) {
	r, tracker, _ := securityRouter(nil)
	tracker.TrackSuspiciousIP("203.0.113.5", "xss")

	w := serve(r, http.MethodGet, "/security/report", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rep security.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	require.Len(t, rep.SuspiciousIPs, 1)
	assert.Equal(t, "203.0.113.5", rep.SuspiciousIPs[0].IP)
	assert.Equal(t, []string{security.RecommendReviewIPs}, rep.Recommendations)
}

func TestSecurityHandler_ListEvents(t *testing.T) {
	stub := &stubEvents{rows: []models.SecurityEvent{{UUID: "e-1", EventType: "THREAT_DETECTED", OccurredAt: time.Now()}}}
	r, _, _ := securityRouter(stub)

	w := serve(r, http.MethodGet, "/security/events?type=THREAT_DETECTED&ip=1.2.3.4&min_severity=HIGH&limit=5000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uuid":"e-1"`)
	assert.Equal(t, services.EventFilter{Type: "THREAT_DETECTED", IP: "1.2.3.4", MinSeverity: threat.SeverityHigh, Limit: maxEventLimit}, stub.got)

	w = serve(r, http.MethodGet, "/security/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultEventLimit, stub.got.Limit)
}

func TestSecurityHandler_ListEventsErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		status int
	}{
		{"bad limit", "?limit=-1", nil, http.StatusBadRequest},
		{"non numeric limit", "?limit=ten", nil, http.StatusBadRequest},
		{"bad severity", "?min_severity=SEVERE", nil, http.StatusBadRequest},
		{"store failure", "", errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := securityRouter(&stubEvents{err: tt.err})
			w := serve(r, http.MethodGet, "/security/events"+tt.query, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}

	r, _, _ := securityRouter(nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/security/events", "").Code)
}

func TestSecurityHandler_ListProfiles(t *testing.T) {
	r, _, _ := securityRouter(nil)
	w := serve(r, http.MethodGet, "/security/profiles", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Profiles []profileView `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Profiles, 4)
	assert.Equal(t, profileView{Name: "api", WindowMs: 900000, Max: 1000}, resp.Profiles[0])
	assert.Equal(t, "strict", resp.Profiles[3].Name)
	assert.Equal(t, 5, resp.Profiles[3].Max)
}

func TestSecurityHandler_Reset(t *testing.T) {
	r, tracker, profiles := securityRouter(nil)
	strict, err := profiles.Get(ratelimit.ProfileStrict)
	require.NoError(t, err)

	seed := func() {
		tracker.TrackFailedAuth("1.2.3.4", "")
		strict.Store().Hit("1.2.3.4", time.Now(), time.Minute, 5)
	}

	seed()
	w := serve(r, http.MethodPost, "/security/reset", `{"scope":"tracker"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, failed, _ := tracker.Snapshot()
	assert.Empty(t, failed)
	assert.Equal(t, 1, strict.Store().Len())

	w = serve(r, http.MethodPost, "/security/reset", `{"scope":"ratelimit"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, strict.Store().Len())

	seed()
	w = serve(r, http.MethodPost, "/security/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reset":"all"`)
	_, failed, _ = tracker.Snapshot()
	assert.Empty(t, failed)
	assert.Zero(t, strict.Store().Len())

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/security/reset", `{"scope":"everything"}`).Code)
}
