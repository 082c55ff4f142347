package apierr_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
)

func TestWriteContentTypeAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	apierr.Write(w, http.StatusBadRequest, "Bad Request", "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type application/problem+json, got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var problem apierr.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if problem.Status != 400 || problem.Title != "Bad Request" || problem.Detail != "field is missing" {
		t.Errorf("unexpected problem body: %+v", problem)
	}
}

func TestWriteInternalSanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	apierr.WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	var problem apierr.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if problem.Detail == "pq: connection refused to host=10.0.0.1" {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequestsSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	apierr.WriteTooManyRequests(w, 30)

	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After=30, got %q", got)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}

func TestWriteRUsesRequestContext(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline/abc", nil)
	req.Header.Set("X-Request-ID", "trace-123")

	apierr.WriteR(w, req, http.StatusNotFound, "Not Found", "span not found")

	var problem apierr.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if problem.Instance != "/api/v1/timeline/abc" {
		t.Errorf("expected instance from request path, got %q", problem.Instance)
	}
	if problem.TraceID != "trace-123" {
		t.Errorf("expected trace id forwarded, got %q", problem.TraceID)
	}
}
