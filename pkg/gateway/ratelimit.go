package gateway

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
)

// Limiter is satisfied by both the in-process limiter in this file and the
// Redis-backed one in ratelimit_redis.go, so the gateway's middleware chain
// doesn't care which backend a deployment picked.
type Limiter interface {
	Allow(actorID string) bool
}

// LocalLimiter is a per-actor token bucket limiter, one bucket per actor ID
// (tenant/user pair), backed by golang.org/x/time/rate. Suitable for a
// single gateway replica; multi-replica deployments should use the Redis
// backend in ratelimit_redis.go instead.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewLocalLimiter builds a limiter admitting ratePerMinute requests per
// minute per actor, with a burst allowance of burst requests.
func NewLocalLimiter(ratePerMinute uint64, burst int) *LocalLimiter {
	rps := rate.Limit(float64(ratePerMinute) / 60.0)
	if rps <= 0 {
		rps = rate.Inf
	}
	return &LocalLimiter{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

// Allow reports whether actorID may proceed, consuming one token if so.
func (l *LocalLimiter) Allow(actorID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[actorID]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[actorID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// actorID resolves the rate-limit bucket key for a request: the
// authenticated tenant/user pair when present, falling back to the remote
// address for unauthenticated calls (health checks, public endpoints).
func actorID(r *http.Request) string {
	if auth, ok := AuthFromContext(r.Context()); ok {
		return auth.TenantID + "/" + auth.UserID
	}
	return r.RemoteAddr
}

// RateLimit returns middleware enforcing limiter per actor, responding 429
// with Retry-After on rejection. A nil limiter fails open.
func RateLimit(limiter Limiter, retryAfterSecs int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(actorID(r)) {
				apierr.WriteTooManyRequests(w, retryAfterSecs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ConcurrencyLimiter bounds the number of in-flight requests the gateway
// forwards at once, rejecting with 503 once the cap is reached rather than
// queuing unboundedly.
type ConcurrencyLimiter struct {
	slots chan struct{}
}

// NewConcurrencyLimiter builds a limiter admitting at most max concurrent
// requests.
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{slots: make(chan struct{}, max)}
}

// Middleware wraps next, rejecting new requests once max are in flight.
func (c *ConcurrencyLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case c.slots <- struct{}{}:
			defer func() { <-c.slots }()
			next.ServeHTTP(w, r)
		default:
			apierr.WriteServiceUnavailable(w, "gateway is at maximum concurrency")
		}
	})
}
