// Package identity implements Ed25519 key generation, persistence and
// signature verification for LogLine identities.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/google/uuid"
)

// Identity is the public, shareable record of a LogLine author.
type Identity struct {
	UUID       uuid.UUID      `json:"uuid"`
	NodeName   string         `json:"node_name"`
	PublicKey  string         `json:"public_key"` // url-safe base64, 32 bytes decoded
	Alias      string         `json:"alias,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	IsOrg      bool           `json:"is_org"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IssuedAt   time.Time      `json:"issued_at"`
}

// KeyPair holds an Identity plus the private signing key. The signing key
// never leaves the process except through Save, which persists it under a
// restrictive file mode.
type KeyPair struct {
	Identity
	PrivateKey ed25519.PrivateKey `json:"-"`
}

// storedKeyPair is the on-disk representation: public identity plus the
// raw private key, base64-encoded.
type storedKeyPair struct {
	Identity
	PrivateKey string `json:"private_key"`
}

// Generate creates a fresh Ed25519 key pair and wraps it in an Identity.
func Generate(nodeName, alias string, tenantID string, isOrg bool) (*KeyPair, error) {
	if nodeName == "" {
		return nil, fmt.Errorf("identity: node_name is required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: key generation failed: %w", err)
	}
	return &KeyPair{
		Identity: Identity{
			UUID:      uuid.New(),
			NodeName:  nodeName,
			PublicKey: base64.URLEncoding.EncodeToString(pub),
			Alias:     alias,
			TenantID:  tenantID,
			IsOrg:     isOrg,
			IssuedAt:  time.Now().UTC(),
		},
		PrivateKey: priv,
	}, nil
}

// Sign signs the given bytes with the key pair's private key, returning the
// raw 64-byte signature. Callers are responsible for canonicalising the
// payload before signing (see pkg/span for the span canonicalisation rule).
func Sign(kp *KeyPair, data []byte) []byte {
	return ed25519.Sign(kp.PrivateKey, data)
}

// Verify checks a signature against an Identity's public key.
//
// Returns a wrapped error distinguishing decode failures from a bad key
// size from an outright verification failure, per the error taxonomy's
// Signature class.
func Verify(id Identity, data, signature []byte) (bool, error) {
	pub, err := base64.URLEncoding.DecodeString(id.PublicKey)
	if err != nil {
		return false, fmt.Errorf("identity: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("identity: invalid public key size %d", len(pub))
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("identity: invalid signature length %d", len(signature))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, signature), nil
}

// VerifyHex is a convenience wrapper for hex-encoded signatures, the wire
// form used on Span.Signature.
func VerifyHex(id Identity, data []byte, signatureHex string) (bool, error) {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("identity: decode signature hex: %w", err)
	}
	return Verify(id, data, sig)
}

// keyPath returns the on-disk location for an alias or node name within dir.
func keyPath(dir, aliasOrNode string) string {
	return filepath.Join(dir, aliasOrNode+".key.json")
}

// Save persists the key pair under dir, keyed by alias (falling back to
// node name when alias is empty).
func Save(kp *KeyPair, dir string) error {
	key := kp.Alias
	if key == "" {
		key = kp.NodeName
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: create key directory: %w", err)
	}
	stored := storedKeyPair{
		Identity:   kp.Identity,
		PrivateKey: base64.StdEncoding.EncodeToString(kp.PrivateKey),
	}
	raw, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal key pair: %w", err)
	}
	return os.WriteFile(keyPath(dir, key), raw, 0o600)
}

// Load reads a previously saved key pair by alias/node name, verifying that
// the stored public key matches the one derived from the private key. A
// mismatch indicates tampering with the stored file and is a hard error.
func Load(dir, aliasOrNode string) (*KeyPair, error) {
	raw, err := os.ReadFile(keyPath(dir, aliasOrNode))
	if err != nil {
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}
	var stored storedKeyPair
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("identity: decode key file: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(stored.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("identity: decode private key: %w", err)
	}
	privKey := ed25519.PrivateKey(priv)
	derivedPub := base64.URLEncoding.EncodeToString(privKey.Public().(ed25519.PublicKey))
	if derivedPub != stored.PublicKey {
		return nil, fmt.Errorf("identity: stored public key does not match derived key for %q (possible tampering)", aliasOrNode)
	}
	return &KeyPair{Identity: stored.Identity, PrivateKey: privKey}, nil
}
