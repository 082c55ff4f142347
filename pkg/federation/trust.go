package federation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TrustStore persists cross-signatures one file per endorsement, in a single
// directory with each file name prefixed by the endorsed peer's id, and
// derives a peer's effective trust level from the endorsements on file.
type TrustStore struct {
	dir string
}

// NewTrustStore opens (creating if necessary) a cross-signature store
// rooted at dir.
func NewTrustStore(dir string) (*TrustStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("federation: create trust directory: %w", err)
	}
	return &TrustStore{dir: dir}, nil
}

// CreateCrossSignature records a new endorsement of peerLoglineID's bundle
// hash, signed by signerLoglineID.
func (t *TrustStore) CreateCrossSignature(signerLoglineID, peerLoglineID, bundleHash, signatureHex string, level TrustLevel) (CrossSignature, error) {
	sig := CrossSignature{
		SignerLoglineID: signerLoglineID,
		SignedHash:      bundleHash,
		PeerLoglineID:   peerLoglineID,
		Timestamp:       time.Now().UTC(),
		Signature:       signatureHex,
		TrustLevel:      level,
	}
	return sig, t.save(sig)
}

func (t *TrustStore) save(sig CrossSignature) error {
	raw, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return fmt.Errorf("federation: marshal cross-signature: %w", err)
	}
	name := fmt.Sprintf("%s_%d.json", sanitizePeerID(sig.PeerLoglineID), sig.Timestamp.UnixNano())
	return os.WriteFile(filepath.Join(t.dir, name), raw, 0o600)
}

// CrossSignaturesFor loads every endorsement on file for peerLoglineID.
func (t *TrustStore) CrossSignaturesFor(peerLoglineID string) ([]CrossSignature, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("federation: list trust directory: %w", err)
	}

	prefix := sanitizePeerID(peerLoglineID) + "_"
	var out []CrossSignature
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(t.dir, name))
		if err != nil {
			return nil, fmt.Errorf("federation: read cross-signature %s: %w", name, err)
		}
		var sig CrossSignature
		if err := json.Unmarshal(raw, &sig); err != nil {
			return nil, fmt.Errorf("federation: decode cross-signature %s: %w", name, err)
		}
		out = append(out, sig)
	}
	return out, nil
}

// CalculateTrustLevel derives a peer's effective trust level from its
// endorsements: any Root-signed endorsement promotes to Trusted outright;
// otherwise two or more Trusted endorsements promote to Trusted; otherwise
// the peer is an Observer. Revocation (no file left) drops back to
// Observer automatically — there is no separate "untrusted" storage state,
// matching the original trust manager's algorithm exactly.
func (t *TrustStore) CalculateTrustLevel(peerLoglineID string) (TrustLevel, error) {
	sigs, err := t.CrossSignaturesFor(peerLoglineID)
	if err != nil {
		return "", err
	}

	var rootCount, trustedCount int
	for _, sig := range sigs {
		switch sig.TrustLevel {
		case TrustRoot:
			rootCount++
		case TrustTrusted:
			trustedCount++
		}
	}

	if rootCount > 0 {
		return TrustTrusted, nil
	}
	if trustedCount >= 2 {
		return TrustTrusted, nil
	}
	return TrustObserver, nil
}

// RevokeTrust deletes every endorsement on file for peerLoglineID.
func (t *TrustStore) RevokeTrust(peerLoglineID string) error {
	prefix := sanitizePeerID(peerLoglineID) + "_"
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return fmt.Errorf("federation: list trust directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json") {
			if err := os.Remove(filepath.Join(t.dir, name)); err != nil {
				return fmt.Errorf("federation: remove cross-signature %s: %w", name, err)
			}
		}
	}
	return nil
}

// IsTrusted reports whether level is Root or Trusted — the two levels
// allowed to participate in pull-sync.
func IsTrusted(level TrustLevel) bool {
	return level == TrustRoot || level == TrustTrusted
}

func sanitizePeerID(loglineID string) string {
	id := strings.TrimPrefix(loglineID, "logline-id://")
	return strings.ReplaceAll(id, "/", "_")
}
