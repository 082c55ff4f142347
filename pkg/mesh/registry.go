package mesh

import (
	"sync"

	"github.com/google/uuid"
)

// ClientRegistry tracks browser/CLI WebSocket clients connected directly to
// the gateway (as opposed to the service-to-service Client peers above) and
// fans out broadcast payloads to all of them.
type ClientRegistry struct {
	mu      sync.Mutex
	clients map[uuid.UUID]chan []byte
}

// NewClientRegistry constructs an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[uuid.UUID]chan []byte)}
}

// Register allocates a new client slot and returns its ID plus the channel
// it should drain for outbound frames.
func (r *ClientRegistry) Register() (uuid.UUID, <-chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	ch := make(chan []byte, 64)
	r.clients[id] = ch
	return id, ch
}

// Unregister removes and closes a client's channel.
func (r *ClientRegistry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.clients[id]; ok {
		delete(r.clients, id)
		close(ch)
	}
}

// Broadcast fans payload out to every registered client, dropping it for
// any client whose channel is currently full rather than blocking.
func (r *ClientRegistry) Broadcast(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Count reports how many clients are currently registered.
func (r *ClientRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
