// Package config loads every LogLine service's configuration from
// environment variables, following the flat-struct-plus-Load() shape each
// service binary under cmd/ uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceTarget is the REST (and optional WebSocket) address the gateway
// proxies a given upstream service to.
type ServiceTarget struct {
	Key         string
	ServiceName string
	RESTURL     string
	WSURL       string
	HealthPath  string
}

// SecurityConfig tunes the gateway's JWT validation, CORS, and public-path
// allowlist.
type SecurityConfig struct {
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	RateLimitPerMinute uint64
	MaxConcurrency     int
	CORSAllowedOrigins []string
	CORSAllowCreds     bool
	ServiceToken       string
	PublicPaths        []string
}

// ResilienceConfig tunes pkg/resilience.State for the gateway.
type ResilienceConfig struct {
	RequestTimeout          time.Duration
	CircuitBreakerThreshold uint32
	CircuitBreakerReset     time.Duration
	RetryAttempts           uint32
	RetryBackoff            time.Duration
	DeadLetterCapacity      int
}

// GatewayConfig is the gateway service's full environment-derived
// configuration: bind address, every upstream target, security and
// resilience tuning.
type GatewayConfig struct {
	BindAddress string
	Engine      ServiceTarget
	Rules       ServiceTarget
	Timeline    ServiceTarget
	Identity    ServiceTarget
	Federation  ServiceTarget
	Security    SecurityConfig
	Resilience  ResilienceConfig
	RedisURL    string
}

// Services returns every upstream target the gateway proxies to, in
// path-prefix resolution order.
func (c GatewayConfig) Services() []ServiceTarget {
	return []ServiceTarget{c.Engine, c.Rules, c.Timeline, c.Identity, c.Federation}
}

// GatewayFromEnv loads GatewayConfig from the process environment.
func GatewayFromEnv() (GatewayConfig, error) {
	bind := envOr("GATEWAY_BIND", "0.0.0.0:8070")

	engine, err := serviceTarget("engine", "logline-engine", "ENGINE_URL", "http://127.0.0.1:8090")
	if err != nil {
		return GatewayConfig{}, err
	}
	rules, err := serviceTarget("rules", "logline-rules", "RULES_URL", "http://127.0.0.1:8081")
	if err != nil {
		return GatewayConfig{}, err
	}
	timeline, err := serviceTarget("timeline", "logline-timeline", "TIMELINE_URL", "http://127.0.0.1:8082")
	if err != nil {
		return GatewayConfig{}, err
	}
	ident, err := serviceTarget("id", "logline-id", "ID_URL", "http://127.0.0.1:8083")
	if err != nil {
		return GatewayConfig{}, err
	}
	federation, err := serviceTarget("federation", "logline-federation", "FEDERATION_URL", "http://127.0.0.1:8084")
	if err != nil {
		return GatewayConfig{}, err
	}

	security, err := securityFromEnv()
	if err != nil {
		return GatewayConfig{}, err
	}

	return GatewayConfig{
		BindAddress: bind,
		Engine:      engine,
		Rules:       rules,
		Timeline:    timeline,
		Identity:    ident,
		Federation:  federation,
		Security:    security,
		Resilience:  resilienceFromEnv(),
		RedisURL:    envOr("GATEWAY_REDIS_URL", ""),
	}, nil
}

func serviceTarget(key, name, envKey, defaultURL string) (ServiceTarget, error) {
	rest := envOr(envKey, defaultURL)
	rest = strings.TrimSuffix(rest, "/")
	if !strings.HasPrefix(rest, "http://") && !strings.HasPrefix(rest, "https://") {
		return ServiceTarget{}, fmt.Errorf("config: %s must be http(s), got %q", envKey, rest)
	}
	ws := envOr(envKey+"_WS", "")
	if ws == "" {
		ws = deriveWSURL(rest)
	}
	return ServiceTarget{
		Key:         key,
		ServiceName: name,
		RESTURL:     rest,
		WSURL:       ws,
		HealthPath:  "/health",
	}, nil
}

// DeriveWSURL exposes deriveWSURL for non-gateway services that need to
// compute a peer's mesh WebSocket URL from its REST base URL directly
// (e.g. cmd/engine's outbound client to the rules/timeline peers).
func DeriveWSURL(restURL string) string { return deriveWSURL(restURL) }

// deriveWSURL rewrites an http(s) target into its ws(s):// counterpart with
// the mesh's conventional /ws/service path appended.
func deriveWSURL(restURL string) string {
	var scheme, rest string
	switch {
	case strings.HasPrefix(restURL, "https://"):
		scheme, rest = "wss://", strings.TrimPrefix(restURL, "https://")
	case strings.HasPrefix(restURL, "http://"):
		scheme, rest = "ws://", strings.TrimPrefix(restURL, "http://")
	default:
		return ""
	}
	return scheme + strings.TrimSuffix(rest, "/") + "/ws/service"
}

func securityFromEnv() (SecurityConfig, error) {
	secret := os.Getenv("GATEWAY_JWT_SECRET")
	if strings.TrimSpace(secret) == "" {
		return SecurityConfig{}, fmt.Errorf("config: GATEWAY_JWT_SECRET must be set")
	}

	origins := splitCSV(envOr("GATEWAY_ALLOWED_ORIGINS", "*"))
	publicPaths := splitCSV(envOr("GATEWAY_PUBLIC_PATHS", "/healthz,/_system/deadletters"))

	return SecurityConfig{
		JWTSecret:          secret,
		JWTIssuer:          envOr("GATEWAY_JWT_ISSUER", "logline-identity"),
		JWTAudience:        envOr("GATEWAY_JWT_AUDIENCE", "logline"),
		RateLimitPerMinute: envUint("GATEWAY_RATE_LIMIT_PER_MINUTE", 240),
		MaxConcurrency:     int(envUint("GATEWAY_MAX_CONCURRENCY", 128)),
		CORSAllowedOrigins: origins,
		CORSAllowCreds:     envUint("GATEWAY_ALLOW_CREDENTIALS", 1) != 0,
		ServiceToken:       os.Getenv("GATEWAY_SERVICE_TOKEN"),
		PublicPaths:        publicPaths,
	}, nil
}

func resilienceFromEnv() ResilienceConfig {
	return ResilienceConfig{
		RequestTimeout:          time.Duration(max64(envUint("GATEWAY_REQUEST_TIMEOUT_MS", 15_000), 100)) * time.Millisecond,
		CircuitBreakerThreshold: uint32(envUint("GATEWAY_CIRCUIT_FAILURE_THRESHOLD", 5)),
		CircuitBreakerReset:     time.Duration(max64(envUint("GATEWAY_CIRCUIT_RESET_SECS", 30), 1)) * time.Second,
		RetryAttempts:           uint32(envUint("GATEWAY_RETRY_ATTEMPTS", 2)),
		RetryBackoff:            time.Duration(max64(envUint("GATEWAY_RETRY_BACKOFF_MS", 200), 10)) * time.Millisecond,
		DeadLetterCapacity:      int(max64(envUint("GATEWAY_DEAD_LETTER_CAPACITY", 200), 10)),
	}
}

// ServiceConfig is the shared shape every non-gateway LogLine service
// (identity, timeline, rules, engine, federation) loads: a bind address, a
// database URL, a log level, and that service's worker/tuning knob.
type ServiceConfig struct {
	BindAddress string
	DatabaseURL string
	LogLevel    string
	NodeName    string
	TenantID    string
	Workers     int
}

// ServiceFromEnv loads a ServiceConfig for one of the non-gateway services,
// using serviceName to namespace its bind-address default (e.g. "timeline"
// defaults to :8082, matching the gateway's own defaults above).
func ServiceFromEnv(serviceName, defaultBind string) ServiceConfig {
	return ServiceConfig{
		BindAddress: envOr(strings.ToUpper(serviceName)+"_BIND", defaultBind),
		DatabaseURL: envOr("DATABASE_URL", "postgres://logline@localhost:5432/logline?sslmode=disable"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		NodeName:    envOr("NODE_NAME", serviceName),
		TenantID:    os.Getenv("DEFAULT_TENANT_ID"),
		Workers:     int(envUint("ENGINE_WORKERS", 4)),
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func max64(v, floor uint64) uint64 {
	if v < floor {
		return floor
	}
	return v
}
