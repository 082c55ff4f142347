package timeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
)

// HTTPAPI exposes the timeline service's internal REST surface per §6:
// POST /v1/spans, GET /v1/spans, GET /v1/spans/{id}, plus /health.
type HTTPAPI struct {
	store  *Store
	logger *slog.Logger
}

// NewHTTPAPI builds the timeline service's mountable http.Handler.
func NewHTTPAPI(store *Store, logger *slog.Logger) *HTTPAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAPI{store: store, logger: logger.With("component", "timeline-http")}
}

// Mux returns the routed handler for this API, ready to mount at the
// service's bind address.
func (a *HTTPAPI) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /v1/spans", a.handleAppend)
	mux.HandleFunc("GET /v1/spans", a.handleList)
	mux.HandleFunc("GET /v1/spans/{id}", a.handleGet)
	return mux
}

func (a *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *HTTPAPI) handleAppend(w http.ResponseWriter, r *http.Request) {
	var sp span.Span
	if err := json.NewDecoder(r.Body).Decode(&sp); err != nil {
		apierr.WriteBadRequest(w, "malformed span payload: "+err.Error())
		return
	}

	entry, err := a.store.Append(r.Context(), &sp)
	if err != nil {
		if err == ErrDuplicateID {
			apierr.Write(w, http.StatusConflict, "duplicate span id", err.Error())
			return
		}
		if errors.Is(err, ErrValidation) {
			apierr.WriteBadRequest(w, err.Error())
			return
		}
		apierr.WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (a *HTTPAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apierr.WriteBadRequest(w, "invalid span id")
		return
	}

	entry, err := a.store.Get(r.Context(), id)
	if err != nil {
		if err == ErrNotFound {
			apierr.WriteNotFound(w, "span not found")
			return
		}
		apierr.WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *HTTPAPI) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := Query{
		LoglineID:  q.Get("logline_id"),
		ContractID: q.Get("contract_id"),
		WorkflowID: q.Get("workflow_id"),
		TenantID:   q.Get("tenant_id"),
		SpanType:   span.Type(q.Get("span_type")),
		Visibility: span.Visibility(q.Get("visibility")),
		Limit:      parseIntOr(q.Get("limit"), 100),
		Offset:     parseIntOr(q.Get("offset"), 0),
	}

	entries, err := a.store.List(r.Context(), query)
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseIntOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
