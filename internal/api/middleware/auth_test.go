package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-erp/backend/internal/principal"
)

const testSecret = "test-secret"

func authRouter(guards ...gin.HandlerFunc) (*gin.Engine, *principal.Principal) {
	gin.SetMode(gin.TestMode)
	var seen principal.Principal
	r := gin.New()
	r.Use(Principal(testSecret))
	r.Use(guards...)
	r.GET("/test", func(c *gin.Context) {
		seen, _ = principal.FromContext(c)
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func get(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPrincipal_AttachesValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "user-42", "ana@example.com", "agent", time.Hour)
	require.NoError(t, err)

	r, seen := authRouter()
	w := get(r, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, principal.Principal{ID: "user-42", Email: "ana@example.com", Role: "agent"}, *seen)
}

func TestPrincipal_NeverRejects(t *testing.T) {
	expired, err := IssueToken(testSecret, "user-42", "", "", -time.Minute)
	require.NoError(t, err)
	forged, err := IssueToken("other-secret", "user-42", "", "admin", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-42"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":   "",
		"basic":     "Basic dXNlcjpwYXNz",
		"garbage":   "Bearer not.a.jwt",
		"expired":   "Bearer " + expired,
		"forged":    "Bearer " + forged,
		"alg none":  "Bearer " + none,
		"no prefix": forged,
	} {
		t.Run(name, func(t *testing.T) {
			r, seen := authRouter()
			w := get(r, header)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, seen.ID)
		})
	}
}

func TestRequirePrincipal(t *testing.T) {
	r, _ := authRouter(RequirePrincipal())
	w := get(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header required")

	token, err := IssueToken(testSecret, "user-1", "", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+token).Code)
}

func TestRequireRole(t *testing.T) {
	admin, err := IssueToken(testSecret, "user-1", "", "admin", time.Hour)
	require.NoError(t, err)
	agent, err := IssueToken(testSecret, "user-2", "", "agent", time.Hour)
	require.NoError(t, err)

	r, _ := authRouter(RequireRole("admin"))
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+admin).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "Bearer "+agent).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
}

func TestPrincipal_DisabledWithoutSecret(t *testing.T) {
	token, err := IssueToken(testSecret, "user-1", "", "admin", time.Hour)
	require.NoError(t, err)

	var seen bool
	r := gin.New()
	r.Use(Principal(""))
	r.GET("/test", func(c *gin.Context) {
		_, seen = principal.FromContext(c)
	})
	get(r, "Bearer "+token)
	assert.False(t, seen)
}
