package rules

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
)

// HTTPAPI exposes the rule engine's internal REST surface per §4.3/§6: rule
// CRUD (versioned per tenant) and POST /tenants/{tenant}/evaluate.
type HTTPAPI struct {
	store  *Store
	logger *slog.Logger
}

// NewHTTPAPI builds the rule service's mountable http.Handler over store.
func NewHTTPAPI(store *Store, logger *slog.Logger) *HTTPAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAPI{store: store, logger: logger.With("component", "rules-http")}
}

// Mux returns the routed handler for this API.
func (a *HTTPAPI) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /tenants/{tenant}/evaluate", a.handleEvaluate)
	mux.HandleFunc("GET /tenants/{tenant}/rules", a.handleListRules)
	mux.HandleFunc("PUT /tenants/{tenant}/rules/{id}", a.handlePutRule)
	mux.HandleFunc("DELETE /tenants/{tenant}/rules/{id}", a.handleDisableRule)
	mux.HandleFunc("GET /tenants/{tenant}/rules/{id}/history", a.handleHistory)
	return mux
}

func (a *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type evaluateRequest struct {
	Span span.Span `json:"span"`
}

type evaluateResponse struct {
	Decision        Decision         `json:"decision"`
	AppliedRules    []string         `json:"applied_rules"`
	Notes           []string         `json:"notes"`
	Tags            []string         `json:"tags"`
	MetadataUpdates []metadataUpdate `json:"metadata_updates"`
	Span            span.Span        `json:"span"`
}

func (a *HTTPAPI) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "malformed evaluate request: "+err.Error())
		return
	}

	engine := NewEngine(a.store.Active(tenant))
	outcome, err := engine.Apply(&req.Span)
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}

	if outcome.IsReject() {
		writeJSON(w, http.StatusBadRequest, evaluateResponse{
			Decision:        outcome.Decision,
			AppliedRules:    outcome.AppliedRules,
			Notes:           outcome.Notes,
			Tags:            outcome.AddedTags,
			MetadataUpdates: outcome.MetadataUpdates,
			Span:            req.Span,
		})
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Decision:        outcome.Decision,
		AppliedRules:    outcome.AppliedRules,
		Notes:           outcome.Notes,
		Tags:            outcome.AddedTags,
		MetadataUpdates: outcome.MetadataUpdates,
		Span:            req.Span,
	})
}

func (a *HTTPAPI) handleListRules(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	writeJSON(w, http.StatusOK, a.store.Active(tenant))
}

func (a *HTTPAPI) handlePutRule(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	id := r.PathValue("id")

	var rule Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		apierr.WriteBadRequest(w, "malformed rule body: "+err.Error())
		return
	}
	rule.ID = id

	version := a.store.Put(tenant, rule, nil)
	writeJSON(w, http.StatusOK, struct {
		Version uint64 `json:"version"`
	}{Version: version})
}

func (a *HTTPAPI) handleDisableRule(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	id := r.PathValue("id")

	version, err := a.store.Disable(tenant, id, nil)
	if err != nil {
		apierr.WriteNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Version uint64 `json:"version"`
	}{Version: version})
}

func (a *HTTPAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, a.store.History(tenant, id))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
