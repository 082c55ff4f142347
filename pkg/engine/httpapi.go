package engine

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
)

// HTTPAPI exposes the execution runtime's internal REST surface per §6:
// POST /tenants/{tenant}/tasks, GET /tenants/{tenant}/tasks,
// GET /tenants/{tenant}/tasks/{id}.
type HTTPAPI struct {
	handle *Handle
	logger *slog.Logger
}

// NewHTTPAPI builds the engine service's mountable http.Handler over a
// running Runtime's Handle.
func NewHTTPAPI(handle *Handle, logger *slog.Logger) *HTTPAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAPI{handle: handle, logger: logger.With("component", "engine-http")}
}

// Mux returns the routed handler for this API.
func (a *HTTPAPI) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /tenants/{tenant}/tasks", a.handleSubmit)
	mux.HandleFunc("GET /tenants/{tenant}/tasks", a.handleList)
	mux.HandleFunc("GET /tenants/{tenant}/tasks/{id}", a.handleGet)
	return mux
}

func (a *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type submitRequest struct {
	Payload      json.RawMessage `json:"payload"`
	Priority     *Priority       `json:"priority"`
	ScheduledFor *string         `json:"scheduled_for"`
	Metadata     json.RawMessage `json:"metadata"`
}

func (a *HTTPAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "malformed task payload: "+err.Error())
		return
	}

	builder := NewTask(tenant).Payload(req.Payload).Metadata(req.Metadata)
	if req.Priority != nil {
		builder = builder.Priority(*req.Priority)
	}
	task := builder.Build()

	id, err := a.handle.Submit(task)
	if err != nil {
		if err == ErrShuttingDown {
			apierr.Write(w, http.StatusServiceUnavailable, "runtime shutting down", err.Error())
			return
		}
		apierr.WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, struct {
		ID uuid.UUID `json:"id"`
	}{ID: id})
}

func (a *HTTPAPI) handleList(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	writeJSON(w, http.StatusOK, a.handle.ListForTenant(tenant))
}

func (a *HTTPAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apierr.WriteBadRequest(w, "invalid task id")
		return
	}

	record, ok := a.handle.Get(id)
	if !ok || record.Task.TenantID != tenant {
		apierr.WriteNotFound(w, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
