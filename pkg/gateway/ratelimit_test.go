package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalLimiterAllowsWithinBurst(t *testing.T) {
	limiter := NewLocalLimiter(60, 2)
	require.True(t, limiter.Allow("actor-a"))
	require.True(t, limiter.Allow("actor-a"))
	require.False(t, limiter.Allow("actor-a"), "third immediate request should exceed the burst of 2")
}

func TestLocalLimiterTracksActorsIndependently(t *testing.T) {
	limiter := NewLocalLimiter(60, 1)
	require.True(t, limiter.Allow("actor-a"))
	require.True(t, limiter.Allow("actor-b"), "a different actor has its own bucket")
}

func TestRateLimitMiddlewareRejectsWithRetryAfter(t *testing.T) {
	limiter := NewLocalLimiter(60, 0)
	handler := RateLimit(limiter, 30)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	req.RemoteAddr = "1.2.3.4:5000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareFailsOpenWithNilLimiter(t *testing.T) {
	handler := RateLimit(nil, 30)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestConcurrencyLimiterRejectsBeyondCapacity(t *testing.T) {
	limiter := NewConcurrencyLimiter(1)
	block := make(chan struct{})
	release := make(chan struct{})

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(block)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-block

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	close(release)
}
