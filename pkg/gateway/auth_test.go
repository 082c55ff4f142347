package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
)

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		JWTSecret:   "test-secret",
		JWTIssuer:   "logline-identity",
		JWTAudience: "logline",
		PublicPaths: []string{"/healthz"},
	}
}

func signToken(t *testing.T, cfg config.SecurityConfig, subject, tenant string, expired bool) string {
	t.Helper()
	now := time.Now().UTC()
	exp := now.Add(time.Hour)
	if expired {
		exp = now.Add(-time.Hour)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.JWTIssuer,
			Audience:  jwt.ClaimStrings{cfg.JWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: tenant,
		Roles:    []string{"operator"},
	})
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	return signed
}

func TestEnforceAuthAllowsPublicPathWithoutToken(t *testing.T) {
	security := NewSecurityState(testSecurityConfig())
	called := false
	handler := security.EnforceAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, called)
}

func TestEnforceAuthRejectsMissingHeader(t *testing.T) {
	security := NewSecurityState(testSecurityConfig())
	handler := security.EnforceAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnforceAuthRejectsExpiredToken(t *testing.T) {
	cfg := testSecurityConfig()
	security := NewSecurityState(cfg)
	handler := security.EnforceAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, cfg, "user-1", "tenant-a", true))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnforceAuthAcceptsValidTokenAndStampsHeaders(t *testing.T) {
	cfg := testSecurityConfig()
	security := NewSecurityState(cfg)

	var seenAuth AuthContext
	var seenOK bool
	handler := security.EnforceAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth, seenOK = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, cfg, "user-1", "tenant-a", false))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, seenOK)
	require.Equal(t, "user-1", seenAuth.UserID)
	require.Equal(t, "tenant-a", seenAuth.TenantID)
	require.True(t, seenAuth.HasRole("operator"))
}

func TestIssueServiceTokenIsSelfValidating(t *testing.T) {
	cfg := testSecurityConfig()
	security := NewSecurityState(cfg)

	token, err := IssueServiceToken(cfg, "logline-engine", "tenant-a", time.Minute)
	require.NoError(t, err)

	parsed, err := security.validateToken(token)
	require.NoError(t, err)
	require.Equal(t, "logline-engine", parsed.Subject)
	require.Equal(t, "tenant-a", parsed.TenantID)
}
