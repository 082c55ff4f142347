package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/resilience"
)

func TestProxyResolveSplitsServiceKeyAndPath(t *testing.T) {
	targets := []config.ServiceTarget{{Key: "timeline", RESTURL: "http://upstream"}}
	proxy := NewProxy(targets, resilience.New(resilience.DefaultConfig(), nil), time.Second)

	target, rest, ok := proxy.resolve("/timeline/spans/123")
	require.True(t, ok)
	require.Equal(t, "http://upstream", target.RESTURL)
	require.Equal(t, "/spans/123", rest)

	_, _, ok = proxy.resolve("/unknown/foo")
	require.False(t, ok)
}

func TestServeHTTPForwardsRequestAndResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/spans", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "hello", string(body))
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	targets := []config.ServiceTarget{{Key: "timeline", RESTURL: upstream.URL}}
	proxy := NewProxy(targets, resilience.New(resilience.DefaultConfig(), nil), time.Second)

	req := httptest.NewRequest(http.MethodPost, "/timeline/spans", stringsReader("hello"))
	w := httptest.NewRecorder()
	proxy.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "yes", w.Header().Get("X-Upstream"))
	require.Equal(t, "ok", w.Body.String())
}

func TestServeHTTPReturnsNotFoundForUnknownPrefix(t *testing.T) {
	proxy := NewProxy(nil, resilience.New(resilience.DefaultConfig(), nil), time.Second)
	req := httptest.NewRequest(http.MethodGet, "/unknown/x", nil)
	w := httptest.NewRecorder()
	proxy.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxyRequestOpensCircuitAfterRepeatedFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	cfg := resilience.DefaultConfig()
	cfg.CircuitBreakerThreshold = 1
	cfg.RetryBackoff = time.Millisecond
	res := resilience.New(cfg, slog.Default())

	targets := []config.ServiceTarget{{Key: "timeline", RESTURL: upstream.URL}}
	proxy := NewProxy(targets, res, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	w := httptest.NewRecorder()
	proxy.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, res.OpenCircuits(), "timeline")

	req2 := httptest.NewRequest(http.MethodGet, "/timeline/spans", nil)
	w2 := httptest.NewRecorder()
	proxy.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusServiceUnavailable, w2.Code)
}

func stringsReader(s string) io.Reader { return &readerAdapter{s: s} }

type readerAdapter struct {
	s   string
	pos int
}

func (r *readerAdapter) Read(p []byte) (int, error) {
	if r.pos >= len(r.s) {
		return 0, io.EOF
	}
	n := copy(p, r.s[r.pos:])
	r.pos += n
	return n, nil
}
