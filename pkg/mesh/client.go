package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/resilience"
)

// Handler reacts to mesh lifecycle events for a single service. Services
// implement this to plug their own message dispatch (e.g. the engine
// runtime turning a SpanCreated into a RuleEvaluationRequest for the rules
// service) into
// the generic reconnecting transport below.
type Handler interface {
	Identity() ServiceIdentity
	OnEstablished(client *ClientHandle, peer Peer) error
	OnMessage(client *ClientHandle, peer Peer, msg ServiceMessage) error
	OnLost(peer Peer) error
}

// ClientHandle is the narrow, concurrency-safe surface a Handler uses to
// talk back to the mesh: send to a named peer, or inspect who's connected.
type ClientHandle struct {
	client *Client
}

// SendTo delivers msg to the named peer's connection, if currently
// established.
func (h *ClientHandle) SendTo(peerName string, msg ServiceMessage) error {
	return h.client.sendTo(peerName, msg)
}

// ConnectedPeers lists the names of currently connected peers.
func (h *ClientHandle) ConnectedPeers() []string {
	return h.client.ConnectedPeers()
}

// Client maintains one reconnecting WebSocket connection per configured
// peer, dispatching every inbound message to handler and applying the
// resilience layer's capped exponential backoff between reconnect
// attempts.
type Client struct {
	identity   ServiceIdentity
	peers      []Peer
	handler    Handler
	resilience *resilience.State
	logger     *slog.Logger
	dialer     *websocket.Dialer

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

// New constructs a Client. res supplies the reconnect backoff schedule; a
// nil logger falls back to slog.Default().
func New(identity ServiceIdentity, peers []Peer, handler Handler, res *resilience.State, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		identity:   identity,
		peers:      peers,
		handler:    handler,
		resilience: res,
		logger:     logger.With("component", "mesh"),
		dialer:     websocket.DefaultDialer,
		conns:      make(map[string]*websocket.Conn),
	}
}

// Handle returns the narrow handle passed to Handler callbacks.
func (c *Client) Handle() *ClientHandle { return &ClientHandle{client: c} }

// ConnectedPeers lists the names of currently connected peers.
func (c *Client) ConnectedPeers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.conns))
	for name := range c.conns {
		names = append(names, name)
	}
	return names
}

// Spawn starts one reconnect-loop goroutine per configured peer. It
// returns immediately; the loops run until ctx is cancelled.
func (c *Client) Spawn(ctx context.Context) {
	for _, peer := range c.peers {
		go c.maintainConnection(ctx, peer)
	}
}

func (c *Client) maintainConnection(ctx context.Context, peer Peer) {
	var attempt uint32
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := c.dialer.DialContext(ctx, peer.URL, nil)
		if err != nil {
			c.logger.Warn("mesh dial failed", "peer", peer.Name, "error", err)
			attempt++
			c.sleepBackoff(ctx, attempt)
			continue
		}
		attempt = 0

		if err := c.handshake(conn); err != nil {
			c.logger.Warn("mesh handshake failed", "peer", peer.Name, "error", err)
			conn.Close()
			attempt++
			c.sleepBackoff(ctx, attempt)
			continue
		}

		c.mu.Lock()
		c.conns[peer.Name] = conn
		c.mu.Unlock()

		if err := c.handler.OnEstablished(c.Handle(), peer); err != nil {
			c.logger.Error("mesh OnEstablished handler failed", "peer", peer.Name, "error", err)
		}

		c.readLoop(ctx, peer, conn)

		c.mu.Lock()
		delete(c.conns, peer.Name)
		c.mu.Unlock()
		_ = c.handler.OnLost(peer)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) sleepBackoff(ctx context.Context, attempt uint32) {
	delay := 500 * time.Millisecond
	if c.resilience != nil {
		delay = c.resilience.BackoffForAttempt(attempt)
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (c *Client) handshake(conn *websocket.Conn) error {
	hello := ServiceMessage{Type: ServiceHello, ServiceName: c.identity.Name, Capabilities: c.identity.Capabilities}
	data, err := Encode(hello)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(ctx context.Context, peer Peer, conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := Decode(raw)
		if err != nil {
			c.logger.Warn("mesh decode failed", "peer", peer.Name, "error", err)
			continue
		}
		if err := c.handler.OnMessage(c.Handle(), peer, msg); err != nil {
			c.logger.Error("mesh OnMessage handler failed", "peer", peer.Name, "error", err)
		}
	}
}

func (c *Client) sendTo(peerName string, msg ServiceMessage) error {
	c.mu.RLock()
	conn, ok := c.conns[peerName]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mesh: no live connection to %q", peerName)
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Upgrader is the shared gorilla/websocket upgrader every LogLine service's
// inbound mesh endpoint uses. Origin checking is left to the gateway's
// CORS/auth layers in front of it.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
