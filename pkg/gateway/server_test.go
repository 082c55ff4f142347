package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
)

func testGatewayConfig(upstreamURL string) config.GatewayConfig {
	target := config.ServiceTarget{Key: "timeline", ServiceName: "logline-timeline", RESTURL: upstreamURL, HealthPath: "/health"}
	return config.GatewayConfig{
		BindAddress: "127.0.0.1:0",
		Timeline:    target,
		Security: config.SecurityConfig{
			JWTSecret:          "test-secret",
			JWTIssuer:          "logline-identity",
			JWTAudience:        "logline",
			RateLimitPerMinute: 600,
			MaxConcurrency:     16,
			CORSAllowedOrigins: []string{"*"},
			PublicPaths:        []string{"/healthz"},
		},
		Resilience: config.ResilienceConfig{
			RequestTimeout:          time.Second,
			CircuitBreakerThreshold: 5,
			CircuitBreakerReset:     30 * time.Second,
			RetryAttempts:           2,
			RetryBackoff:            10 * time.Millisecond,
			DeadLetterCapacity:      50,
		},
	}
}

func TestNewServerRejectsUnauthenticatedProxyRequests(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	server := NewServer(testGatewayConfig(upstream.URL), &recordingMeshSender{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewServerServesHealthzWithoutAuth(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	server := NewServer(testGatewayConfig(upstream.URL), &recordingMeshSender{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewServerProxiesAuthenticatedRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/spans", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := testGatewayConfig(upstream.URL)
	server := NewServer(cfg, &recordingMeshSender{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, cfg.Security, "user-1", "tenant-a", false))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
