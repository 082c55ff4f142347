// Package hashbundle implements the signed, self-describing export
// envelope: a timeline snapshot file, a metadata sidecar, and a detached
// signature file, plus the verifier that checks them back against each
// other.
package hashbundle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/canonicalize"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/identity"
	"github.com/danvoulez/UniverseLogLine-sub001/pkg/timeline"
)

// ExportFormat names the timeline file's encoding.
type ExportFormat string

const (
	FormatNDJSON ExportFormat = "ndjson"
	FormatJSON   ExportFormat = "json"
)

// Meta is the bundle's sidecar metadata document, written as
// "<prefix>.meta.json".
type Meta struct {
	ExportTimestamp   time.Time    `json:"export_timestamp"`
	TotalSpans        int          `json:"total_spans"`
	SignedSpans       int          `json:"signed_spans"`
	ContractSpans     int          `json:"contract_spans"`
	UniqueLoglineIDs  []string     `json:"unique_logline_ids"`
	TimelineHash      string       `json:"timeline_hash"`
	IntegrityVerified bool         `json:"integrity_verified"`
	ExportFormat      ExportFormat `json:"export_format"`
	LoglineVersion    string       `json:"logline_version"`
}

// Bundle is a fully materialised export: the three sibling byte blobs
// ready to be written under a shared filename prefix.
type Bundle struct {
	Timeline []byte
	MetaJSON []byte
	Sig      []byte
	Meta     Meta
}

// Files returns the bundle's three sibling files keyed by the suffix they
// should be written with under a shared prefix (".ndjson"/".json",
// ".meta.json", ".sig").
func (b Bundle) Files(format ExportFormat) map[string][]byte {
	timelineSuffix := "." + string(format)
	return map[string][]byte{
		timelineSuffix: b.Timeline,
		".meta.json":   b.MetaJSON,
		".sig":         b.Sig,
	}
}

// minSupportedVersion is the oldest logline_version a bundle may declare
// for Verify to accept it; bundles from an incompatible major version are
// rejected outright.
var minSupportedVersion = semver.MustParse("1.0.0")

// Export snapshots tenantID's timeline (or the whole store when tenantID
// is empty — a privileged, cross-tenant operation left to the caller to
// gate) into a signed Bundle. identities, if non-nil, is used to compute
// the metadata's integrity_verified flag via Store.VerifyIntegrity;
// passing nil skips that check and reports false.
func Export(ctx context.Context, store *timeline.Store, tenantID string, signer *identity.KeyPair, loglineVersion string, format ExportFormat, identities map[string]identity.Identity) (Bundle, error) {
	if _, err := semver.NewVersion(loglineVersion); err != nil {
		return Bundle{}, fmt.Errorf("hashbundle: invalid logline_version %q: %w", loglineVersion, err)
	}

	entries, err := store.List(ctx, timeline.Query{TenantID: tenantID, Limit: 0})
	if err != nil {
		return Bundle{}, fmt.Errorf("hashbundle: list spans: %w", err)
	}

	timelineBytes, err := encodeTimeline(entries, format)
	if err != nil {
		return Bundle{}, err
	}

	integrityVerified := false
	if identities != nil {
		integrityVerified, err = store.VerifyIntegrity(ctx, identities)
		if err != nil {
			return Bundle{}, fmt.Errorf("hashbundle: verify integrity: %w", err)
		}
	}

	meta := buildMeta(entries, timelineBytes, format, loglineVersion, integrityVerified)
	metaJSON, err := canonicalize.JCSCanonicalize(meta)
	if err != nil {
		return Bundle{}, fmt.Errorf("hashbundle: canonicalise metadata: %w", err)
	}

	sig, err := signBundle(signer, timelineBytes, metaJSON)
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{Timeline: timelineBytes, MetaJSON: metaJSON, Sig: sig, Meta: meta}, nil
}

func encodeTimeline(entries []timeline.Entry, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		spans := make([]any, 0, len(entries))
		for _, e := range entries {
			spans = append(spans, e.Span)
		}
		raw, err := json.MarshalIndent(spans, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("hashbundle: marshal timeline json: %w", err)
		}
		return raw, nil
	case FormatNDJSON, "":
		var buf []byte
		for _, e := range entries {
			line, err := json.Marshal(e.Span)
			if err != nil {
				return nil, fmt.Errorf("hashbundle: marshal span %s: %w", e.Span.ID, err)
			}
			buf = append(buf, line...)
			buf = append(buf, '\n')
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("hashbundle: unknown export format %q", format)
	}
}

func buildMeta(entries []timeline.Entry, timelineBytes []byte, format ExportFormat, loglineVersion string, integrityVerified bool) Meta {
	authors := make(map[string]struct{})
	signedSpans, contractSpans := 0, 0
	for _, e := range entries {
		if e.Span.Signature != nil {
			signedSpans++
		}
		if e.Span.ContractID != nil {
			contractSpans++
		}
		authors[e.Span.LoglineID] = struct{}{}
	}
	uniqueIDs := make([]string, 0, len(authors))
	for id := range authors {
		uniqueIDs = append(uniqueIDs, id)
	}
	sort.Strings(uniqueIDs)

	return Meta{
		ExportTimestamp:   time.Now().UTC(),
		TotalSpans:        len(entries),
		SignedSpans:       signedSpans,
		ContractSpans:     contractSpans,
		UniqueLoglineIDs:  uniqueIDs,
		TimelineHash:      canonicalize.HashBytes(timelineBytes),
		IntegrityVerified: integrityVerified,
		ExportFormat:      format,
		LoglineVersion:    loglineVersion,
	}
}
