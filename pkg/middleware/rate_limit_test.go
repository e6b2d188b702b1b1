package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// asSubject pins the limiter key so tests don't share a bucket through the
// common test client IP.
func asSubject(sub string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("claims", map[string]interface{}{"sub": sub})
		c.Next()
	}
}

func limitedRouter(sub string, rps float64, burst int) *gin.Engine {
	r := gin.New()
	r.Use(asSubject(sub), RateLimitMiddleware(rps, burst))
	r.GET("/doc", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	r := limitedRouter("rl-under", 10, 2)
	require.Equal(t, http.StatusOK, get(r, "/doc").Code)
	require.Equal(t, http.StatusOK, get(r, "/doc").Code)
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := limitedRouter("rl-exceed", 2, 1)

	require.Equal(t, http.StatusOK, get(r, "/doc").Code)
	w := get(r, "/doc")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))

	// two tokens per second: 600ms refills a full token
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusOK, get(r, "/doc").Code)
}

func TestRateLimitMiddleware_ExemptsProbes(t *testing.T) {
	r := limitedRouter("rl-probes", 0.5, 1)

	require.Equal(t, http.StatusOK, get(r, "/doc").Code)
	require.Equal(t, http.StatusTooManyRequests, get(r, "/doc").Code)

	// health stays reachable while the caller is throttled
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, get(r, "/health").Code)
	}
}

func TestRateLimitMiddleware_SeparatesSubjects(t *testing.T) {
	// exhausting one subject leaves another untouched
	r1 := limitedRouter("rl-subject-a", 0.5, 1)
	r2 := limitedRouter("rl-subject-b", 0.5, 1)

	require.Equal(t, http.StatusOK, get(r1, "/doc").Code)
	require.Equal(t, http.StatusTooManyRequests, get(r1, "/doc").Code)
	require.Equal(t, http.StatusOK, get(r2, "/doc").Code)
}
