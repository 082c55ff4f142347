// Package rules implements the declarative per-tenant policy engine:
// conditions, actions, enforcement outcomes, rule storage/versioning, and
// rule set evaluation against spans.
package rules

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FieldPath addresses a value inside a span's JSON snapshot via dotted
// segments; numeric segments index into arrays.
type FieldPath string

// Segments splits the path on '.', dropping empty segments.
func (p FieldPath) segments() []string {
	parts := strings.Split(string(p), ".")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Locate walks root following the path's segments, returning the value at
// that position, or (nil, false) if any segment is missing or the path
// descends through a non-object/non-array node.
func (p FieldPath) Locate(root any) (any, bool) {
	current := root
	for _, seg := range p.segments() {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// ConditionKind tags the Condition sum type for JSON (de)serialisation.
type ConditionKind string

const (
	CondAlways       ConditionKind = "always"
	CondAll          ConditionKind = "all"
	CondAny          ConditionKind = "any"
	CondNot          ConditionKind = "not"
	CondEquals       ConditionKind = "equals"
	CondNotEquals    ConditionKind = "not_equals"
	CondExists       ConditionKind = "exists"
	CondMissing      ConditionKind = "missing"
	CondContainsText ConditionKind = "contains_text"
	CondContainsTag  ConditionKind = "contains_tag"
	CondGreaterThan  ConditionKind = "greater_than"
	CondLessThan     ConditionKind = "less_than"
)

// Condition is a closed sum type over the twelve condition variants the
// rule engine understands. Exactly one of the typed fields is meaningful,
// selected by Type.
type Condition struct {
	Type       ConditionKind `json:"type"`
	Conditions []Condition   `json:"conditions,omitempty"` // All, Any
	Condition_ *Condition    `json:"condition,omitempty"`  // Not
	Field      FieldPath     `json:"field,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"` // Equals, NotEquals
	Text       string        `json:"text,omitempty"`       // ContainsText
	Tag        string        `json:"tag,omitempty"`        // ContainsTag
	Number     float64       `json:"value_number,omitempty"` // GreaterThan, LessThan
}

// Always returns the always-true condition.
func Always() Condition { return Condition{Type: CondAlways} }

// SpanTagger is the minimal view of a span the engine needs for
// ContainsTag, avoiding an import cycle on pkg/span.
type SpanTagger interface {
	HasTag(tag string) bool
}

// Evaluate recursively evaluates the condition against span (for
// ContainsTag) and snapshot (the span's JSON view, for everything else).
func (c Condition) Evaluate(span SpanTagger, snapshot any) bool {
	switch c.Type {
	case CondAlways:
		return true
	case CondAll:
		for _, sub := range c.Conditions {
			if !sub.Evaluate(span, snapshot) {
				return false
			}
		}
		return true
	case CondAny:
		for _, sub := range c.Conditions {
			if sub.Evaluate(span, snapshot) {
				return true
			}
		}
		return false
	case CondNot:
		if c.Condition_ == nil {
			return true
		}
		return !c.Condition_.Evaluate(span, snapshot)
	case CondEquals:
		actual, ok := c.Field.Locate(snapshot)
		if !ok {
			return false
		}
		return valuesEqual(actual, c.decodedValue())
	case CondNotEquals:
		actual, ok := c.Field.Locate(snapshot)
		if !ok {
			return false
		}
		return !valuesEqual(actual, c.decodedValue())
	case CondExists:
		_, ok := c.Field.Locate(snapshot)
		return ok
	case CondMissing:
		_, ok := c.Field.Locate(snapshot)
		return !ok
	case CondContainsText:
		actual, ok := c.Field.Locate(snapshot)
		if !ok {
			return false
		}
		s, ok := actual.(string)
		if !ok {
			return false
		}
		return strings.Contains(s, c.Text)
	case CondContainsTag:
		return span.HasTag(c.Tag)
	case CondGreaterThan:
		actual, ok := c.Field.Locate(snapshot)
		if !ok {
			return false
		}
		f, ok := asFloat(actual)
		return ok && f > c.Number
	case CondLessThan:
		actual, ok := c.Field.Locate(snapshot)
		if !ok {
			return false
		}
		f, ok := asFloat(actual)
		return ok && f < c.Number
	default:
		return false
	}
}

func (c Condition) decodedValue() any {
	if len(c.Value) == 0 {
		return nil
	}
	var v any
	_ = json.Unmarshal(c.Value, &v)
	return v
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// valuesEqual compares two decoded JSON values, using an epsilon tolerance
// for numeric comparisons to reconcile integer/float representations.
func valuesEqual(left, right any) bool {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	lb, err1 := json.Marshal(left)
	rb, err2 := json.Marshal(right)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(lb) == string(rb)
}
