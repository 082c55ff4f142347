package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
)

type recordingMeshSender struct {
	sent []mesh.ServiceMessage
}

func (r *recordingMeshSender) SendTo(peerName string, msg mesh.ServiceMessage) error {
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingMeshSender) ConnectedPeers() []string { return nil }

func TestWSServeHTTPRejectsMissingToken(t *testing.T) {
	security := NewSecurityState(testSecurityConfig())
	ws := NewWS(security, mesh.NewClientRegistry(), &recordingMeshSender{}, nil)
	server := httptest.NewServer(ws)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSServeHTTPUpgradesAndRoutesClientMessages(t *testing.T) {
	cfg := testSecurityConfig()
	security := NewSecurityState(cfg)
	sender := &recordingMeshSender{}
	ws := NewWS(security, mesh.NewClientRegistry(), sender, nil)
	server := httptest.NewServer(ws)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+signToken(t, cfg, "user-1", "tenant-a", false))

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	raw, err := mesh.Encode(mesh.ServiceMessage{Type: mesh.RuleEvaluationRequest, TenantID: "tenant-a"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	require.Eventually(t, func() bool {
		return len(sender.sent) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, mesh.RuleEvaluationRequest, sender.sent[0].Type)
}
