package federation

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/timeline"
)

// HTTPAPI exposes the federation service's internal REST surface: the
// pull-sync source every peer's SyncManager GETs (§4.8's "HTTP GET its
// exported timeline"), peer registry inspection, and a manual sync trigger.
type HTTPAPI struct {
	store    *timeline.Store
	registry *Registry
	trust    *TrustStore
	sync     *SyncManager
	logger   *slog.Logger
}

// NewHTTPAPI builds the federation service's mountable http.Handler.
func NewHTTPAPI(store *timeline.Store, registry *Registry, trust *TrustStore, sync *SyncManager, logger *slog.Logger) *HTTPAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAPI{store: store, registry: registry, trust: trust, sync: sync, logger: logger.With("component", "federation-http")}
}

// Mux returns the routed handler for this API.
func (a *HTTPAPI) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /timeline.ndjson", a.handleExportTimeline)
	mux.HandleFunc("GET /v1/peers", a.handleListPeers)
	mux.HandleFunc("PUT /v1/peers/{logline_id}", a.handlePutPeer)
	mux.HandleFunc("POST /v1/sync", a.handleSync)
	return mux
}

func (a *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleExportTimeline streams every locally stored span as newline-
// delimited JSON, the format syncWithPeer on the pulling side parses line
// by line.
func (a *HTTPAPI) handleExportTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.List(r.Context(), timeline.Query{})
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	encoder := json.NewEncoder(w)
	for _, entry := range entries {
		if err := encoder.Encode(entry.Span); err != nil {
			a.logger.Warn("failed to encode span for federation export", "error", err)
			return
		}
	}
}

func (a *HTTPAPI) handleListPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.List())
}

type putPeerRequest struct {
	PublicKeyHex string `json:"public_key_hex"`
	TailscaleIP  string `json:"tailscale_ip"`
}

func (a *HTTPAPI) handlePutPeer(w http.ResponseWriter, r *http.Request) {
	loglineID := r.PathValue("logline_id")

	var req putPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "malformed peer body: "+err.Error())
		return
	}

	level, err := a.trust.CalculateTrustLevel(loglineID)
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}

	peer, err := NewPeer(loglineID, req.PublicKeyHex, req.TailscaleIP, level)
	if err != nil {
		apierr.WriteBadRequest(w, err.Error())
		return
	}
	a.registry.Put(peer)
	if err := a.registry.Save(); err != nil {
		a.logger.Warn("failed to persist peer registry", "error", err)
	}
	writeJSON(w, http.StatusOK, peer)
}

func (a *HTTPAPI) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := a.sync.SyncWithPeers(r.Context(), a.registry)
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}
	if err := a.registry.Save(); err != nil {
		a.logger.Warn("failed to persist peer registry after sync", "error", err)
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
