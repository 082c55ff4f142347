// Package gateway implements the edge HTTP/WebSocket surface every LogLine
// client talks to: JWT authentication, CORS, rate limiting, a REST
// reverse-proxy fronting the upstream services, and health aggregation.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
)

// contextKey namespaces values this package stores on a request context.
type contextKey string

const authContextKey contextKey = "gateway.auth"

// AuthContext is the authenticated caller identity attached to a request
// once it passes the auth middleware.
type AuthContext struct {
	UserID   string
	TenantID string
	Roles    []string
}

// HasRole reports whether the caller carries role.
func (a AuthContext) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// claims are the JWT claims the identity service issues.
type claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

// SecurityState holds the gateway's JWT validation configuration: the
// shared secret, expected issuer/audience, and the public-path allowlist
// that bypasses auth entirely.
type SecurityState struct {
	cfg config.SecurityConfig
}

// NewSecurityState constructs a SecurityState from the gateway's security
// configuration.
func NewSecurityState(cfg config.SecurityConfig) *SecurityState {
	return &SecurityState{cfg: cfg}
}

// IsPublicPath reports whether path is reachable without authentication.
func (s *SecurityState) IsPublicPath(path string) bool {
	for _, p := range s.cfg.PublicPaths {
		if p == path {
			return true
		}
	}
	return false
}

// validateToken parses and validates a bearer token against the configured
// secret, issuer and audience.
func (s *SecurityState) validateToken(tokenStr string) (*claims, error) {
	parsed := &claims{}
	token, err := jwt.ParseWithClaims(tokenStr, parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("gateway: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithIssuer(s.cfg.JWTIssuer),
		jwt.WithAudience(s.cfg.JWTAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("gateway: invalid token")
	}
	return parsed, nil
}

// extractBearer pulls the token out of an "Authorization: Bearer <token>"
// header, rejecting any other scheme.
func extractBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

// applyOutboundHeaders stamps the resolved identity onto the proxied
// upstream request, so the engine/rules/timeline services never re-parse
// the JWT themselves.
func applyOutboundHeaders(r *http.Request, auth AuthContext) {
	r.Header.Set("X-User-ID", auth.UserID)
	r.Header.Set("X-Tenant-ID", auth.TenantID)
	r.Header.Set("X-User-Roles", strings.Join(auth.Roles, ","))
}

// EnforceAuth is the JWT authentication middleware: public paths pass
// through untouched, everything else needs a valid bearer token whose
// claims carry both a subject and a tenant.
func (s *SecurityState) EnforceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			apierr.WriteUnauthorized(w, "missing Authorization header")
			return
		}
		token, ok := extractBearer(header)
		if !ok {
			apierr.WriteUnauthorized(w, "expected 'Bearer <token>' Authorization header")
			return
		}

		parsed, err := s.validateToken(token)
		if err != nil {
			apierr.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		if parsed.Subject == "" {
			apierr.WriteUnauthorized(w, "token subject is required")
			return
		}
		if parsed.TenantID == "" {
			apierr.WriteUnauthorized(w, "token tenant binding is required")
			return
		}

		auth := AuthContext{UserID: parsed.Subject, TenantID: parsed.TenantID, Roles: parsed.Roles}
		applyOutboundHeaders(r, auth)

		ctx := context.WithValue(r.Context(), authContextKey, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthFromContext retrieves the caller's AuthContext, set by EnforceAuth.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey).(AuthContext)
	return auth, ok
}

// IssueServiceToken mints a short-lived HS256 token for internal
// service-to-service calls (e.g. the engine calling back into timeline),
// signed with the same secret the gateway validates inbound tokens with.
func IssueServiceToken(cfg config.SecurityConfig, serviceName, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   serviceName,
			Issuer:    cfg.JWTIssuer,
			Audience:  jwt.ClaimStrings{cfg.JWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
		Roles:    []string{"service"},
	})
	return token.SignedString([]byte(cfg.JWTSecret))
}
