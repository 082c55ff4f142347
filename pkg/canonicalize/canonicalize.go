// Package canonicalize provides deterministic serialisation for hashing and
// signing. Two distinct canonical forms are used across the system:
//
//   - DeclarationOrder: SHA-256 over the struct's own JSON field order, with
//     HTML escaping disabled and optional fields omitted when absent. This is
//     the form the span model signs and hashes (see pkg/span); it matches the
//     upstream protocol's `serde_json::to_string` behaviour exactly, which is
//     declaration order, not sorted order.
//   - JCS: RFC 8785 canonical JSON (sorted object keys) via gowebpki/jcs, used
//     where two independently-serialised documents must hash identically
//     regardless of field order — currently HashBundle metadata.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DeclarationOrder marshals v using v's own struct field order (as
// encoding/json would for an ordinary Marshal call) but with HTML escaping
// disabled, which matters for payloads containing `<`, `>`, `&`.
func DeclarationOrder(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// HashDeclarationOrder returns the SHA-256 hex digest of v's
// declaration-order canonical form.
func HashDeclarationOrder(v any) (string, error) {
	b, err := DeclarationOrder(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// JCSCanonicalize returns the RFC 8785 canonical JSON form of v: marshal via
// encoding/json (respecting struct tags), then transform via gowebpki/jcs to
// obtain deterministic, sorted-key, ES6-numeric-formatted output.
func JCSCanonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	return out, nil
}

// HashJCS returns the SHA-256 hex digest of v's JCS canonical form.
func HashJCS(v any) (string, error) {
	b, err := JCSCanonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

