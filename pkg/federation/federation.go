// Package federation implements cross-node trust and timeline pull-sync:
// peers are tracked with a trust level derived from cross-signature
// endorsements, and trusted/root peers are periodically pulled for new
// spans which are deduplicated, provenance-stamped, and imported locally.
package federation

import "time"

// TrustLevel is a peer's standing in the federation.
type TrustLevel string

const (
	TrustRoot      TrustLevel = "root"
	TrustTrusted   TrustLevel = "trusted"
	TrustObserver  TrustLevel = "observer"
	TrustUntrusted TrustLevel = "untrusted"
)

// PeerStatus is a peer's last-known connectivity state.
type PeerStatus string

const (
	PeerOnline  PeerStatus = "online"
	PeerOffline PeerStatus = "offline"
	PeerSyncing PeerStatus = "syncing"
	PeerError   PeerStatus = "error"
)

// Peer is a federation member LogLine node.
type Peer struct {
	LoglineID      string     `json:"logline_id"`
	PublicKey      string     `json:"public_key"`
	TailscaleIP    string     `json:"tailscale_ip"`
	TrustLevel     TrustLevel `json:"trust_level"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	SpansReceived  uint64     `json:"spans_received"`
	Status         PeerStatus `json:"status"`
	StatusReason   string     `json:"status_reason,omitempty"`
}

// CrossSignature records one signer's endorsement of a peer's bundle hash
// at a given trust level.
type CrossSignature struct {
	SignerLoglineID string     `json:"signer_logline_id"`
	SignedHash      string     `json:"signed_hash"`
	PeerLoglineID   string     `json:"peer_logline_id"`
	Timestamp       time.Time  `json:"timestamp"`
	Signature       string     `json:"signature"`
	TrustLevel      TrustLevel `json:"trust_level"`
}
