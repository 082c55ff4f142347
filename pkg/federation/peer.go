package federation

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
)

// Registry holds the federation's known peers in memory, optionally backed
// by a JSON document on disk (the federation config file named in §6 of
// the external-interfaces contract).
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	path  string
}

// NewRegistry constructs an empty, in-memory-only peer registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// LoadRegistry reads a federation config JSON document ({"peers": [...]})
// from path. A missing file yields an empty registry bound to path, so a
// later Save creates it.
func LoadRegistry(path string) (*Registry, error) {
	reg := &Registry{peers: make(map[string]*Peer), path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("federation: read peer registry: %w", err)
	}
	var doc struct {
		Peers []*Peer `json:"peers"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("federation: decode peer registry: %w", err)
	}
	for _, p := range doc.Peers {
		reg.peers[p.LoglineID] = p
	}
	return reg, nil
}

// Save writes the registry back to its backing path, if one was set via
// LoadRegistry.
func (r *Registry) Save() error {
	if r.path == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc := struct {
		Peers []*Peer `json:"peers"`
	}{Peers: r.listLocked()}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("federation: marshal peer registry: %w", err)
	}
	return os.WriteFile(r.path, raw, 0o600)
}

// NewPeer validates and constructs a Peer, mirroring the original
// federation's creation-time checks: a "logline-id://" scheme, a 64-hex-char
// public key, and a parseable IP address.
func NewPeer(loglineID, publicKeyHex, tailscaleIP string, level TrustLevel) (*Peer, error) {
	if !strings.HasPrefix(loglineID, "logline-id://") {
		return nil, fmt.Errorf("federation: logline_id must start with logline-id://")
	}
	if len(publicKeyHex) != 64 || !isHex(publicKeyHex) {
		return nil, fmt.Errorf("federation: public_key must be 64 hex characters")
	}
	if net.ParseIP(tailscaleIP) == nil {
		return nil, fmt.Errorf("federation: invalid tailscale_ip %q", tailscaleIP)
	}
	return &Peer{
		LoglineID:   loglineID,
		PublicKey:   publicKeyHex,
		TailscaleIP: tailscaleIP,
		TrustLevel:  level,
		Status:      PeerOffline,
	}, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') && !(r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

// Put inserts or replaces a peer.
func (r *Registry) Put(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.LoglineID] = p
}

// Get returns the peer with the given id, if known.
func (r *Registry) Get(loglineID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[loglineID]
	return p, ok
}

// List returns every known peer.
func (r *Registry) List() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []*Peer {
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Trusted returns every peer whose trust level permits pull-sync.
func (r *Registry) Trusted() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Peer
	for _, p := range r.peers {
		if IsTrusted(p.TrustLevel) {
			out = append(out, p)
		}
	}
	return out
}
