package rules

import "encoding/json"

// DecisionKind tags the merge-lattice outcome of a rule evaluation.
type DecisionKind string

const (
	DecisionAllow    DecisionKind = "allow"
	DecisionReject   DecisionKind = "reject"
	DecisionSimulate DecisionKind = "simulate"
)

// Decision is the aggregate verdict of applying a rule set to a span.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Reason string       `json:"reason,omitempty"` // Reject
	Note   *string      `json:"note,omitempty"`   // Simulate
}

// Merge combines the receiver (the running decision) with a newly-produced
// one, per the lattice Reject > Simulate > Allow. Between two Rejects the
// newest reason wins; between two Simulates the new note wins if present,
// else the old note is kept.
func (d Decision) Merge(other Decision) Decision {
	switch {
	case other.Kind == DecisionReject:
		return other
	case d.Kind == DecisionReject:
		return d
	case d.Kind == DecisionSimulate && other.Kind == DecisionSimulate:
		note := other.Note
		if note == nil {
			note = d.Note
		}
		return Decision{Kind: DecisionSimulate, Note: note}
	case d.Kind == DecisionSimulate && other.Kind == DecisionAllow:
		return d
	case d.Kind == DecisionAllow && other.Kind == DecisionSimulate:
		return other
	default: // Allow, Allow
		return Decision{Kind: DecisionAllow}
	}
}

// metadataUpdate is an ordered (key, value) pair; find-and-replace by key,
// not a map, so insertion order of first occurrence is preserved.
type metadataUpdate struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// EnforcementOutcome is the aggregated effect of applying a rule set to one span.
type EnforcementOutcome struct {
	Decision       Decision          `json:"decision"`
	AppliedRules   []string          `json:"applied_rules"`
	AddedTags      []string          `json:"added_tags"`
	MetadataUpdates []metadataUpdate `json:"metadata_updates"`
	Notes          []string          `json:"notes"`
}

// NewEnforcementOutcome returns an outcome defaulted to Allow.
func NewEnforcementOutcome() *EnforcementOutcome {
	return &EnforcementOutcome{
		Decision:        Decision{Kind: DecisionAllow},
		AppliedRules:    []string{},
		AddedTags:       []string{},
		MetadataUpdates: []metadataUpdate{},
		Notes:           []string{},
	}
}

func (o *EnforcementOutcome) RecordRule(id string) { o.AppliedRules = append(o.AppliedRules, id) }

func (o *EnforcementOutcome) PushTag(tag string) {
	for _, t := range o.AddedTags {
		if t == tag {
			return
		}
	}
	o.AddedTags = append(o.AddedTags, tag)
}

func (o *EnforcementOutcome) PushMetadata(key string, value json.RawMessage) {
	for i := range o.MetadataUpdates {
		if o.MetadataUpdates[i].Key == key {
			o.MetadataUpdates[i].Value = value
			return
		}
	}
	o.MetadataUpdates = append(o.MetadataUpdates, metadataUpdate{Key: key, Value: value})
}

func (o *EnforcementOutcome) PushNote(note string) { o.Notes = append(o.Notes, note) }

func (o *EnforcementOutcome) UpdateDecision(next Decision) {
	o.Decision = o.Decision.Merge(next)
}

// IsReject reports whether the current decision is Reject.
func (o *EnforcementOutcome) IsReject() bool { return o.Decision.Kind == DecisionReject }
