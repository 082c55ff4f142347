package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/resilience"
)

// Proxy resolves path-prefix-addressed requests to one of the gateway's
// upstream REST targets and forwards them with resilience-layer circuit
// breaking, retries, and dead-lettering on exhaustion.
type Proxy struct {
	targets      map[string]config.ServiceTarget
	resilience   *resilience.State
	client       *http.Client
	serviceToken string
}

// NewProxy builds a Proxy routing on the first path segment of every
// request (e.g. /timeline/... -> the "timeline" target).
func NewProxy(targets []config.ServiceTarget, res *resilience.State, requestTimeout time.Duration) *Proxy {
	byKey := make(map[string]config.ServiceTarget, len(targets))
	for _, t := range targets {
		byKey[t.Key] = t
	}
	return &Proxy{
		targets:    byKey,
		resilience: res,
		client:     &http.Client{Timeout: requestTimeout},
	}
}

// WithServiceToken attaches the gateway's static inter-service token,
// forwarded on every proxied request as X-Service-Token so upstreams can
// distinguish gateway-originated calls from a directly-reachable backend.
func (p *Proxy) WithServiceToken(token string) *Proxy {
	p.serviceToken = token
	return p
}

// resolve splits the request path into (service key, remaining path) and
// looks up the matching upstream target.
func (p *Proxy) resolve(path string) (config.ServiceTarget, string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segments := strings.SplitN(trimmed, "/", 2)
	if len(segments) == 0 || segments[0] == "" {
		return config.ServiceTarget{}, "", false
	}
	target, ok := p.targets[segments[0]]
	if !ok {
		return config.ServiceTarget{}, "", false
	}
	rest := ""
	if len(segments) == 2 {
		rest = "/" + segments[1]
	}
	return target, rest, true
}

// ServeHTTP implements the reverse-proxy entrypoint mounted at the
// gateway's REST prefix.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, rest, ok := p.resolve(r.URL.Path)
	if !ok {
		apierr.WriteNotFound(w, "no upstream service matches this path")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.WriteBadRequest(w, "failed to read request body")
		return
	}

	resp, err := p.proxyRequest(r.Context(), target, r.Method, rest, r.URL.RawQuery, r.Header, body)
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			apierr.WriteServiceUnavailable(w, target.ServiceName+" is temporarily unavailable")
			return
		}
		apierr.WriteServiceUnavailable(w, "upstream request failed: "+err.Error())
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// proxyRequest retries up to the configured attempt count, checking the
// circuit before every attempt and sleeping the resilience layer's backoff
// between failures. The final failure is filed as a dead letter.
func (p *Proxy) proxyRequest(ctx context.Context, target config.ServiceTarget, method, path, rawQuery string, header http.Header, body []byte) (*http.Response, error) {
	url := target.RESTURL + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}

	var lastErr error
	attempts := p.resilience.Config().RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	for attempt := uint32(0); attempt < attempts; attempt++ {
		if err := p.resilience.BeforeRequest(target.Key); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, readerFor(body))
		if err != nil {
			return nil, err
		}
		copyForwardableHeaders(req.Header, header)
		if p.serviceToken != "" {
			req.Header.Set("X-Service-Token", p.serviceToken)
		}

		resp, err := p.client.Do(req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			p.resilience.RecordSuccess(target.Key)
			return resp, nil
		}

		if err == nil {
			resp.Body.Close()
			lastErr = httpStatusError{status: resp.StatusCode}
		} else {
			lastErr = err
		}

		final := attempt == attempts-1
		p.resilience.RecordFailure(target.Key, url, lastErr.Error(), len(body), final)
		if final {
			break
		}
		time.Sleep(p.resilience.BackoffForAttempt(attempt))
	}
	return nil, lastErr
}

type httpStatusError struct{ status int }

func (e httpStatusError) Error() string { return "upstream returned a server error" }

// copyForwardableHeaders copies header into dst, dropping hop-by-hop
// headers that must not be forwarded as-is (Host and Content-Length are
// recomputed by net/http for the outbound request).
func copyForwardableHeaders(dst, src http.Header) {
	for key, values := range src {
		if strings.EqualFold(key, "Host") || strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func readerFor(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return strings.NewReader(string(body))
}
