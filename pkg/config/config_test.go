package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGatewayFromEnvRequiresJWTSecret(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", "")
	_, err := GatewayFromEnv()
	require.Error(t, err)
}

func TestGatewayFromEnvAppliesDefaults(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", "supersecret")
	cfg, err := GatewayFromEnv()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8070", cfg.BindAddress)
	require.Equal(t, "http://127.0.0.1:8090", cfg.Engine.RESTURL)
	require.Equal(t, "ws://127.0.0.1:8090/ws/service", cfg.Engine.WSURL)
	require.Equal(t, "logline-identity", cfg.Security.JWTIssuer)
	require.Equal(t, []string{"*"}, cfg.Security.CORSAllowedOrigins)
	require.Len(t, cfg.Services(), 5)
}

func TestDeriveWSURLRewritesScheme(t *testing.T) {
	require.Equal(t, "ws://host:8080/ws/service", deriveWSURL("http://host:8080"))
	require.Equal(t, "wss://host/ws/service", deriveWSURL("https://host"))
	require.Equal(t, "", deriveWSURL("ftp://host"))
}

func TestServiceFromEnvNamespacesBindAddress(t *testing.T) {
	t.Setenv("TIMELINE_BIND", "0.0.0.0:9999")
	cfg := ServiceFromEnv("timeline", "0.0.0.0:8082")
	require.Equal(t, "0.0.0.0:9999", cfg.BindAddress)
}

func TestServiceFromEnvFallsBackToDefaultBind(t *testing.T) {
	cfg := ServiceFromEnv("rules", "0.0.0.0:8081")
	require.Equal(t, "0.0.0.0:8081", cfg.BindAddress)
}
