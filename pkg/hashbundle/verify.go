package hashbundle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/canonicalize"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/identity"
)

// VerifyResult reports the outcome of Verify, broken into the individual
// checks a caller may want to surface separately (e.g. "hash matched but
// signer is unrecognised" vs. "file was tampered with").
type VerifyResult struct {
	HashMatches       bool
	SignatureValid    bool
	VersionCompatible bool
}

// OK reports whether every check in the result passed.
func (r VerifyResult) OK() bool {
	return r.HashMatches && r.SignatureValid && r.VersionCompatible
}

// Verify recomputes the timeline+metadata digest from raw bundle bytes and
// checks it against sig's recorded hash and signature, using signer's
// public key; the signer logline id and public key recorded in sig must
// also be signer's own. It also checks meta's logline_version against
// minSupportedVersion and meta's timeline_hash against the raw timeline
// bytes. The span counts and other summary fields in meta are not
// recounted.
func Verify(timelineBytes, metaJSON, sigJSON []byte, signer identity.Identity) (VerifyResult, error) {
	var sig SigBlock
	if err := json.Unmarshal(sigJSON, &sig); err != nil {
		return VerifyResult{}, fmt.Errorf("hashbundle: parse signature block: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return VerifyResult{}, fmt.Errorf("hashbundle: parse metadata: %w", err)
	}

	result := VerifyResult{}

	recomputedHash := payloadHash(timelineBytes, metaJSON)
	result.HashMatches = recomputedHash == sig.SignedPayloadHash

	if result.HashMatches {
		sigBytes, err := hex.DecodeString(sig.Signature)
		if err != nil {
			return result, fmt.Errorf("hashbundle: decode signature hex: %w", err)
		}
		ok, err := identity.Verify(signer, []byte(sig.SignedPayloadHash), sigBytes)
		if err != nil {
			return result, fmt.Errorf("hashbundle: verify signature: %w", err)
		}
		result.SignatureValid = ok && sig.SignerPublicKey == signer.PublicKey && sig.SignerLoglineID == signer.NodeName
	}

	if v, err := semver.NewVersion(meta.LoglineVersion); err == nil {
		result.VersionCompatible = v.Major() == minSupportedVersion.Major() && !v.LessThan(minSupportedVersion)
	}

	if expected := canonicalize.HashBytes(timelineBytes); expected != meta.TimelineHash {
		result.HashMatches = false
	}

	return result, nil
}
