package mesh

import (
	"log/slog"
	"net/http"
)

// Dispatch handles one inbound ServiceMessage on a service's mesh-facing
// WebSocket endpoint. ConnectionLost is never passed here; it is a
// synthetic client-side-only event (see MessageType).
type Dispatch func(conn *ServerConn, msg ServiceMessage) error

// Server is the mesh-facing WebSocket endpoint every LogLine service
// embeds per §4.5 ("server side"): it upgrades the connection, announces
// its own ServiceHello, answers HealthCheckPing with HealthCheckPong, and
// routes every other typed message to dispatch.
type Server struct {
	identity ServiceIdentity
	dispatch Dispatch
	logger   *slog.Logger
}

// NewServer builds a mesh Server for identity, routing inbound messages to
// dispatch.
func NewServer(identity ServiceIdentity, dispatch Dispatch, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{identity: identity, dispatch: dispatch, logger: logger.With("component", "mesh-server")}
}

// ServerConn is the narrow surface a Dispatch callback uses to reply on the
// same connection it was invoked from.
type ServerConn struct {
	conn wsConn
}

// Send writes msg back on the connection this ServerConn wraps.
func (c *ServerConn) Send(msg ServiceMessage) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(textMessageType, data)
}

// LoggingDispatch returns a Dispatch that only logs every non-handshake,
// non-healthcheck message it receives, for services with no business
// reason to act on inbound mesh traffic themselves.
func LoggingDispatch(logger *slog.Logger) Dispatch {
	return func(conn *ServerConn, msg ServiceMessage) error {
		if msg.Type == ServiceHello || msg.Type == HealthCheckPing || msg.Type == HealthCheckPong {
			return nil
		}
		logger.Info("mesh message received", "type", msg.Type, "tenant", msg.TenantID)
		return nil
	}
}

// wsConn narrows *websocket.Conn to what Server needs, so it stays
// testable without a real socket.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

const textMessageType = 1 // websocket.TextMessage

// ServeHTTP upgrades the request to a WebSocket, sends this service's own
// ServiceHello, then loops reading frames until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("mesh server upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.serve(conn)
}

func (s *Server) serve(conn wsConn) {
	hello := ServiceMessage{Type: ServiceHello, ServiceName: s.identity.Name, Capabilities: s.identity.Capabilities}
	data, err := Encode(hello)
	if err != nil {
		s.logger.Error("mesh server failed to encode hello", "error", err)
		return
	}
	if err := conn.WriteMessage(textMessageType, data); err != nil {
		return
	}

	sc := &ServerConn{conn: conn}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := Decode(raw)
		if err != nil {
			s.logger.Warn("mesh server decode failed", "error", err)
			continue
		}

		if msg.Type == HealthCheckPing {
			if err := sc.Send(ServiceMessage{Type: HealthCheckPong}); err != nil {
				return
			}
			continue
		}
		if s.dispatch != nil {
			if err := s.dispatch(sc, msg); err != nil {
				s.logger.Error("mesh server dispatch failed", "type", msg.Type, "error", err)
			}
		}
	}
}
