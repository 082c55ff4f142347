package hashbundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/identity"
)

// SigBlock is the bundle's detached signature document, written as
// "<prefix>.sig". It binds the timeline and metadata files together: both
// are hashed into SignedPayloadHash, so tampering with either file, or
// swapping in a metadata sidecar from a different export, invalidates the
// signature.
type SigBlock struct {
	SignerLoglineID   string    `json:"signer_logline_id"`
	SignerPublicKey   string    `json:"signer_public_key"`
	SignedPayloadHash string    `json:"signed_payload_hash"`
	Signature         string    `json:"signature"`
	SignedAt          time.Time `json:"signed_at"`
}

// signingPayload is the exact byte sequence a signature covers: the
// timeline file's bytes, a newline separator, then the canonicalised
// metadata bytes. Hashing the concatenation (rather than signing it
// directly) keeps the signed quantity a fixed-size digest regardless of
// bundle size.
func signingPayload(timelineBytes, metaJSON []byte) []byte {
	payload := make([]byte, 0, len(timelineBytes)+1+len(metaJSON))
	payload = append(payload, timelineBytes...)
	payload = append(payload, '\n')
	payload = append(payload, metaJSON...)
	return payload
}

func payloadHash(timelineBytes, metaJSON []byte) string {
	sum := sha256.Sum256(signingPayload(timelineBytes, metaJSON))
	return hex.EncodeToString(sum[:])
}

func signBundle(signer *identity.KeyPair, timelineBytes, metaJSON []byte) ([]byte, error) {
	if signer == nil {
		return nil, fmt.Errorf("hashbundle: signer is required")
	}
	hash := payloadHash(timelineBytes, metaJSON)
	sig := identity.Sign(signer, []byte(hash))

	block := SigBlock{
		SignerLoglineID:   signer.NodeName,
		SignerPublicKey:   signer.PublicKey,
		SignedPayloadHash: hash,
		Signature:         hex.EncodeToString(sig),
		SignedAt:          time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("hashbundle: marshal signature block: %w", err)
	}
	return raw, nil
}
