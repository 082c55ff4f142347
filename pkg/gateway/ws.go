package gateway

import (
	"log/slog"
	"net/http"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/mesh"
)

// MeshSender is the subset of mesh.ClientHandle the gateway's WS endpoint
// needs: forwarding a decoded client message on to the service mesh.
type MeshSender interface {
	SendTo(peerName string, msg mesh.ServiceMessage) error
	ConnectedPeers() []string
}

// WS exposes the gateway's client-facing /ws endpoint: browser/CLI
// WebSocket clients connect here, are authenticated the same way REST
// callers are, and have their messages routed onto the service mesh while
// also receiving every mesh-originated broadcast.
type WS struct {
	security *SecurityState
	registry *mesh.ClientRegistry
	router   mesh.Router
	meshConn MeshSender
	logger   *slog.Logger
}

// NewWS constructs the gateway's WebSocket handler.
func NewWS(security *SecurityState, registry *mesh.ClientRegistry, meshConn MeshSender, logger *slog.Logger) *WS {
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{security: security, registry: registry, router: mesh.NewRouter(), meshConn: meshConn, logger: logger.With("component", "gateway-ws")}
}

// ServeHTTP upgrades the connection after validating the bearer token
// carried on the initial HTTP request (WebSocket upgrades cannot send a
// custom Authorization header after the fact, so auth happens here).
func (s *WS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token, ok := extractBearer(header)
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if _, err := s.security.validateToken(token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := mesh.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientID, outbound := s.registry.Register()
	defer s.registry.Unregister(clientID)

	done := make(chan struct{})
	go s.pump(conn, outbound, done)
	s.readClientMessages(conn)
	close(done)
}

// pump relays registry broadcasts (mesh-originated events) out to this
// client's socket until the connection's read loop signals it is done.
func (s *WS) pump(conn meshWriter, outbound <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case payload, ok := <-outbound:
			if !ok {
				return
			}
			if err := conn.WriteMessage(textMessageType, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readClientMessages decodes every inbound frame and forwards it to the
// mesh targets the router names for that message type.
func (s *WS) readClientMessages(conn meshReader) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := mesh.Decode(raw)
		if err != nil {
			s.logger.Warn("websocket client sent undecodable frame", "error", err)
			continue
		}
		for _, target := range s.router.Targets(msg) {
			if err := s.meshConn.SendTo(target, msg); err != nil {
				s.logger.Warn("failed to forward client message to mesh peer", "target", target, "error", err)
			}
		}
	}
}

// meshWriter/meshReader narrow gorilla/websocket's *Conn to what pump/
// readClientMessages need, so they stay testable without a real socket.
type meshWriter interface {
	WriteMessage(messageType int, data []byte) error
}

type meshReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

const textMessageType = 1 // websocket.TextMessage
