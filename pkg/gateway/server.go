package gateway

import (
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/resilience"
)

// Server assembles every gateway concern — REST proxying, the client WS
// endpoint, health aggregation, and the resilience dead-letter surface —
// into one mountable http.Handler, layered outermost-first as auth, CORS,
// concurrency limiting, and rate limiting around its merged sub-routers.
type Server struct {
	Handler http.Handler

	Security   *SecurityState
	Resilience *resilience.State
	Registry   *mesh.ClientRegistry
}

// NewServer wires a gateway Server from its configuration and a live mesh
// client (used both to forward client-originated messages onto the mesh
// and to report connected-peer health).
func NewServer(cfg config.GatewayConfig, meshClient MeshSender, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	security := NewSecurityState(cfg.Security)
	res := resilience.New(resilience.Config{
		CircuitBreakerThreshold: cfg.Resilience.CircuitBreakerThreshold,
		CircuitBreakerReset:     cfg.Resilience.CircuitBreakerReset,
		RetryBackoff:            cfg.Resilience.RetryBackoff,
		RetryAttempts:           cfg.Resilience.RetryAttempts,
		DeadLetterCapacity:      cfg.Resilience.DeadLetterCapacity,
	}, logger)
	registry := mesh.NewClientRegistry()

	targets := cfg.Services()
	proxy := NewProxy(targets, res, cfg.Resilience.RequestTimeout).WithServiceToken(cfg.Security.ServiceToken)
	ws := NewWS(security, registry, meshClient, logger)

	var meshStatus MeshStatus
	if meshClient != nil {
		meshStatus = meshClient
	}
	health := NewHealthState(targets, meshStatus, res)

	burst := int(cfg.Security.RateLimitPerMinute / 4)
	if burst < 1 {
		burst = 1
	}
	var limiter Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid redis url, falling back to in-process rate limiter", "error", err)
			limiter = NewLocalLimiter(cfg.Security.RateLimitPerMinute, burst)
		} else {
			limiter = NewRedisLimiter(redis.NewClient(opts), cfg.Security.RateLimitPerMinute, float64(burst))
		}
	} else {
		limiter = NewLocalLimiter(cfg.Security.RateLimitPerMinute, burst)
	}
	concurrency := NewConcurrencyLimiter(cfg.Security.MaxConcurrency)

	mux := http.NewServeMux()
	mux.Handle("/healthz", health)
	mux.Handle("/ws", ws)
	mux.Handle("/_system/deadletters", res.Handler())
	mux.Handle("/", proxy)

	var handler http.Handler = mux
	handler = RateLimit(limiter, 60)(handler)
	handler = concurrency.Middleware(handler)
	handler = CORS(cfg.Security.CORSAllowedOrigins, cfg.Security.CORSAllowCreds)(handler)
	handler = security.EnforceAuth(handler)

	return &Server{Handler: handler, Security: security, Resilience: res, Registry: registry}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler.ServeHTTP(w, r)
}
