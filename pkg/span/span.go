// Package span defines the Span record, the system's atomic unit of
// signed, append-only truth, and its canonicalisation/hash/signature rules.
package span

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/canonicalize"
)

// Status is the lifecycle state of a span.
type Status string

const (
	StatusExecuted  Status = "executed"
	StatusSimulated Status = "simulated"
	StatusReverted  Status = "reverted"
	StatusGhost     Status = "ghost"
)

// Type categorises the author/origin of a span.
type Type string

const (
	TypeUser         Type = "user"
	TypeSystem       Type = "system"
	TypeOrganization Type = "organization"
	TypeGhost        Type = "ghost"
)

// Visibility constrains who may read a span in a multi-tenant listing.
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

// VerificationStatus records the outcome of the last signature check.
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationPending  VerificationStatus = "pending"
	VerificationFailed   VerificationStatus = "failed"
)

// Span is the atomic, signed, append-only record of a computable event.
//
// Field order is significant: hash() and the signing payload are computed
// over this exact declaration order (see pkg/canonicalize.DeclarationOrder),
// matching the wire form a reader recovers from serialise(deserialise(s)).
type Span struct {
	ID                  uuid.UUID           `json:"id"`
	Timestamp           time.Time           `json:"timestamp"`
	LoglineID           string              `json:"logline_id"`
	Author              string              `json:"author"`
	Title               string              `json:"title"`
	Status              Status              `json:"status"`
	Data                json.RawMessage     `json:"data,omitempty"`
	ContractID          *string             `json:"contract_id,omitempty"`
	WorkflowID          *string             `json:"workflow_id,omitempty"`
	FlowID              *string             `json:"flow_id,omitempty"`
	CausedBy            *uuid.UUID          `json:"caused_by,omitempty"`
	Signature           *string             `json:"signature,omitempty"`
	VerificationStatus  *VerificationStatus `json:"verification_status,omitempty"`
	DeltaS              *float64            `json:"delta_s,omitempty"`
	ReplayCount         *uint32             `json:"replay_count,omitempty"`
	ReplayFrom          *uuid.UUID          `json:"replay_from,omitempty"`
	TenantID            *string             `json:"tenant_id,omitempty"`
	OrganizationID       *uuid.UUID         `json:"organization_id,omitempty"`
	UserID              *uuid.UUID          `json:"user_id,omitempty"`
	SpanType            *Type               `json:"span_type,omitempty"`
	Visibility          *Visibility         `json:"visibility,omitempty"`
	Metadata            json.RawMessage     `json:"metadata,omitempty"`
	Processed           bool                `json:"processed"`
	Tags                []string            `json:"tags"`
	RelatedSpans        []string            `json:"related_spans"`
}

// New creates a span with the minimum required fields, mirroring the
// upstream protocol's SpanBuilder defaults.
func New(loglineID, title string) *Span {
	return &Span{
		ID:           uuid.New(),
		Timestamp:    time.Now().UTC(),
		LoglineID:    loglineID,
		Author:       loglineID,
		Title:        title,
		Status:       StatusExecuted,
		Tags:         []string{},
		RelatedSpans: []string{},
	}
}

// WithPayload attaches a JSON payload and returns the span for chaining.
func (s *Span) WithPayload(payload json.RawMessage) *Span {
	s.Data = payload
	return s
}

// WithAuthor overrides the span's author, distinct from logline_id per the
// upstream protocol's timeline entry (author and logline_id are surfaced
// verbatim and may legitimately differ, e.g. a system-authored span
// recorded against a user's logline_id).
func (s *Span) WithAuthor(author string) *Span {
	s.Author = author
	return s
}

// MarkProcessed sets the processed flag.
func (s *Span) MarkProcessed() { s.Processed = true }

// Sign attaches a hex-encoded signature, defaulting verification_status to
// verified if it was not already set.
func (s *Span) Sign(signatureHex string) {
	s.Signature = &signatureHex
	if s.VerificationStatus == nil {
		v := VerificationVerified
		s.VerificationStatus = &v
	}
}

// AddTag inserts tag into the tag set, keeping it deduplicated and sorted —
// Go has no BTreeSet, so insertion is sort-then-dedup over a small slice,
// which is the practical equivalent the upstream Rust used.
func (s *Span) AddTag(tag string) {
	for _, t := range s.Tags {
		if t == tag {
			return
		}
	}
	s.Tags = append(s.Tags, tag)
	sort.Strings(s.Tags)
}

// RelateTo inserts a related-span reference with the same set semantics as AddTag.
func (s *Span) RelateTo(reference string) {
	for _, r := range s.RelatedSpans {
		if r == reference {
			return
		}
	}
	s.RelatedSpans = append(s.RelatedSpans, reference)
	sort.Strings(s.RelatedSpans)
}

// AddMetadata inserts or replaces a key in the span's metadata object. If
// Metadata is currently absent or not a JSON object, it is (re)initialised.
func (s *Span) AddMetadata(key string, value any) error {
	m := map[string]any{}
	if len(s.Metadata) > 0 {
		// Best-effort: ignore a non-object existing value by overwriting it.
		_ = json.Unmarshal(s.Metadata, &m)
	}
	m[key] = value
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.Metadata = raw
	return nil
}

// HasTag reports whether tag is present in the span's tag set.
func (s *Span) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// signingView is the span with Signature forced to null, used for both
// hash() and the payload that gets signed/verified.
func (s Span) signingView() Span {
	s.Signature = nil
	return s
}

// Hash computes the deterministic SHA-256 hash of the span: declaration-order
// canonical JSON with signature cleared, matching Testable Property 2
// (hash(s) == hash(clone(s)) == hash(deserialise(serialise(s)))).
func (s *Span) Hash() (string, error) {
	return canonicalize.HashDeclarationOrder(s.signingView())
}

// CanonicalBytesForSigning returns the exact byte sequence that Sign/Verify
// operate over: declaration-order JSON with signature=null.
func (s *Span) CanonicalBytesForSigning() ([]byte, error) {
	return canonicalize.DeclarationOrder(s.signingView())
}

// Snapshot returns a generic JSON view of the span (map[string]any/slice
// nesting), the form the rule engine's field paths address. It satisfies
// pkg/rules.Span.
func (s *Span) Snapshot() (any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// Clone returns a deep-enough copy for non-destructive rule evaluation:
// slices and the metadata/data payloads are copied so mutating the clone
// never affects the original.
func (s *Span) Clone() *Span {
	clone := *s
	clone.Tags = append([]string(nil), s.Tags...)
	clone.RelatedSpans = append([]string(nil), s.RelatedSpans...)
	if s.Data != nil {
		clone.Data = append(json.RawMessage(nil), s.Data...)
	}
	if s.Metadata != nil {
		clone.Metadata = append(json.RawMessage(nil), s.Metadata...)
	}
	return &clone
}
