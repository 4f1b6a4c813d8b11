package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/scheduling-api/pkg/auth"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) {
		rc, _ := GetRequestContext(c)
		if rc == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant_id": rc.TenantID, "role": rc.Role, "actor": rc.ActorID})
	})
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorCode {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	return resp.Code
}

func TestAuthenticate(t *testing.T) {
	jwtSvc := auth.NewJWTService("test-secret", "scheduling-api", time.Hour)
	tenantID := uuid.New()
	token, err := jwtSvc.GenerateToken(tenantID, "user-1", "staff")
	require.NoError(t, err)

	r := newEngine(Authenticate(jwtSvc))

	t.Run("valid token", func(t *testing.T) {
		w := get(r, "Bearer "+token)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tenantID.String(), body["tenant_id"])
		assert.Equal(t, "staff", body["role"])
		assert.Equal(t, "user-1", body["actor"])
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(r, "bearer "+token).Code)
	})

	for name, header := range map[string]string{
		"missing header": "",
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"no token":       "Bearer",
		"garbage token":  "Bearer not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			w := get(r, header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, apperrors.CodeUnauthenticated, errorCode(t, w))
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwtSvc := auth.NewJWTService("test-secret", "scheduling-api", time.Hour)
	r := newEngine(Authenticate(jwtSvc), RequireRole("admin"))

	admin, err := jwtSvc.GenerateToken(uuid.New(), "a", "admin")
	require.NoError(t, err)
	staff, err := jwtSvc.GenerateToken(uuid.New(), "s", "staff")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(r, "Bearer "+admin).Code)

	w := get(r, "Bearer "+staff)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperrors.CodeForbidden, errorCode(t, w))

	t.Run("without authentication", func(t *testing.T) {
		w := get(newEngine(RequireRole("admin")), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimiter_PerTenant(t *testing.T) {
	jwtSvc := auth.NewJWTService("test-secret", "scheduling-api", time.Hour)
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})
	r := newEngine(Authenticate(jwtSvc), rl.RateLimit())

	tokenA, err := jwtSvc.GenerateToken(uuid.New(), "a", "staff")
	require.NoError(t, err)
	tokenB, err := jwtSvc.GenerateToken(uuid.New(), "b", "staff")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(r, "Bearer "+tokenA).Code)
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+tokenA).Code)

	w := get(r, "Bearer "+tokenA)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, apperrors.CodeRateLimited, errorCode(t, w))

	// Tenant B has its own bucket.
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+tokenB).Code)
}

func TestRateLimiter_FallsBackToClientIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1})
	r := newEngine(rl.RateLimit())

	assert.Equal(t, http.StatusNoContent, get(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "").Code)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1})
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	assert.True(t, rl.Allow("other"))
}
