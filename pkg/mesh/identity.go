package mesh

// ServiceIdentity is the handshake payload a mesh client presents when
// connecting to a peer: its own name plus the message types it is willing
// to receive.
type ServiceIdentity struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// NewServiceIdentity builds a ServiceIdentity.
func NewServiceIdentity(name string, capabilities ...string) ServiceIdentity {
	return ServiceIdentity{Name: name, Capabilities: capabilities}
}

// Peer is one mesh endpoint this client can dial: a logical service name
// plus its WebSocket URL.
type Peer struct {
	Name string
	URL  string
}
