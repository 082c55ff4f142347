package identity

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/apierr"
)

// HTTPAPI exposes the identity service's internal REST surface per §6:
// POST /v1/ids, POST /v1/ids/verify, plus /health.
type HTTPAPI struct {
	keyDir string
	logger *slog.Logger
}

// NewHTTPAPI builds the identity service's mountable http.Handler. keyDir
// is where generated key pairs are persisted (see Save/Load).
func NewHTTPAPI(keyDir string, logger *slog.Logger) *HTTPAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAPI{keyDir: keyDir, logger: logger.With("component", "identity-http")}
}

// Mux returns the routed handler for this API.
func (a *HTTPAPI) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /v1/ids", a.handleCreate)
	mux.HandleFunc("POST /v1/ids/verify", a.handleVerify)
	return mux
}

func (a *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type createRequest struct {
	NodeName string `json:"node_name"`
	Alias    string `json:"alias"`
	TenantID string `json:"tenant_id"`
	IsOrg    bool   `json:"is_org"`
}

func (a *HTTPAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "malformed request body: "+err.Error())
		return
	}

	kp, err := Generate(req.NodeName, req.Alias, req.TenantID, req.IsOrg)
	if err != nil {
		apierr.WriteBadRequest(w, err.Error())
		return
	}
	if err := Save(kp, a.keyDir); err != nil {
		apierr.WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, kp.Identity)
}

type verifyRequest struct {
	Identity     Identity `json:"identity"`
	DataHex      string   `json:"data_hex"`
	SignatureHex string   `json:"signature_hex"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

func (a *HTTPAPI) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "malformed request body: "+err.Error())
		return
	}

	data, err := hex.DecodeString(req.DataHex)
	if err != nil {
		apierr.WriteBadRequest(w, "data_hex must be hex-encoded bytes")
		return
	}

	valid, err := VerifyHex(req.Identity, data, req.SignatureHex)
	if err != nil {
		apierr.WriteBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: valid})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
