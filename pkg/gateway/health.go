package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/config"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/resilience"
)

// MeshStatus reports which services currently hold a live mesh connection,
// supplied by pkg/mesh so this package has no direct dependency on the
// websocket transport.
type MeshStatus interface {
	ConnectedPeers() []string
}

// HealthState aggregates upstream REST health, mesh connectivity, and the
// resilience layer's circuit/dead-letter status into one /healthz response.
type HealthState struct {
	client       *http.Client
	targets      []config.ServiceTarget
	mesh         MeshStatus
	expectedMesh []string
	resilience   *resilience.State
}

// NewHealthState builds a HealthState from the gateway's configured
// upstream targets.
func NewHealthState(targets []config.ServiceTarget, mesh MeshStatus, res *resilience.State) *HealthState {
	var expected []string
	for _, t := range targets {
		if t.WSURL != "" {
			expected = append(expected, t.ServiceName)
		}
	}
	return &HealthState{
		client:       &http.Client{Timeout: 5 * time.Second},
		targets:      targets,
		mesh:         mesh,
		expectedMesh: expected,
		resilience:   res,
	}
}

type serviceHealth struct {
	Key     string `json:"key"`
	Service string `json:"service"`
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

type meshHealth struct {
	Connected []string `json:"connected"`
	Expected  []string `json:"expected"`
}

type resilienceStatus struct {
	OpenCircuits []string `json:"open_circuits"`
	DeadLetters  int      `json:"dead_letters"`
}

type healthResponse struct {
	Status     string           `json:"status"`
	Services   []serviceHealth  `json:"services"`
	Mesh       meshHealth       `json:"mesh"`
	Resilience resilienceStatus `json:"resilience"`
}

// ServeHTTP implements the /healthz handler: every upstream REST target is
// probed, mesh connectivity is compared against the expected peer set, and
// any open circuit degrades overall status.
func (h *HealthState) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	overallOK := true
	services := make([]serviceHealth, 0, len(h.targets))

	for _, target := range h.targets {
		url := target.RESTURL + target.HealthPath
		resp, err := h.client.Get(url)
		if err != nil {
			overallOK = false
			services = append(services, serviceHealth{Key: target.Key, Service: target.ServiceName, URL: url, Healthy: false, Message: err.Error()})
			continue
		}
		healthy := resp.StatusCode < http.StatusBadRequest
		resp.Body.Close()
		if !healthy {
			overallOK = false
		}
		services = append(services, serviceHealth{Key: target.Key, Service: target.ServiceName, URL: url, Healthy: healthy})
	}

	var connected []string
	if h.mesh != nil {
		connected = h.mesh.ConnectedPeers()
	}
	if len(connected) < len(h.expectedMesh) {
		overallOK = false
	}

	openCircuits := h.resilience.OpenCircuits()
	if len(openCircuits) > 0 {
		overallOK = false
	}

	status := "ok"
	if !overallOK {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:     status,
		Services:   services,
		Mesh:       meshHealth{Connected: connected, Expected: h.expectedMesh},
		Resilience: resilienceStatus{OpenCircuits: openCircuits, DeadLetters: h.resilience.DeadLetterCount()},
	})
}
