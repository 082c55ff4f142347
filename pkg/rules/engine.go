package rules

import (
	"encoding/json"
	"fmt"
)

// Span is the minimal view of a span the engine mutates and evaluates
// against. pkg/span.Span satisfies this interface; it is expressed here
// (rather than importing pkg/span) so the engine has no dependency on the
// span package's canonicalisation/signing concerns.
type Span interface {
	SpanTagger
	AddTag(tag string)
	AddMetadata(key string, value any) error
	MarkProcessed()
	Snapshot() (any, error)
}

// Engine evaluates spans against a sorted set of rules.
type Engine struct {
	rules []Rule
}

// NewEngine constructs an engine from rules, sorting them by (priority, id).
func NewEngine(rules []Rule) *Engine {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	for i := range sorted {
		sorted[i].applyDefaults()
	}
	sortRules(sorted)
	return &Engine{rules: sorted}
}

func sortRules(rules []Rule) {
	// Insertion sort keeps the (priority, id) stability explicit and cheap
	// for the rule-set sizes this engine evaluates (typically tens, not
	// thousands, per tenant).
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && less(rules[j], rules[j-1]); j-- {
			rules[j], rules[j-1] = rules[j-1], rules[j]
		}
	}
}

func less(a, b Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// FromPath constructs an engine from rules loaded via LoadRules.
func FromPath(path string) (*Engine, error) {
	loaded, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(loaded), nil
}

// Rules returns the engine's sorted rule set.
func (e *Engine) Rules() []Rule { return e.rules }

// Non-destructive evaluation (spec.md §4.3 "evaluate(span)") is the
// caller's responsibility: clone the span (pkg/span.Span.Clone) and pass
// the clone to Apply. Apply itself always mutates whatever Span it is
// given, by design. The rules service's evaluate handler (httpapi.go)
// applies the rule set to the span decoded from the request body, so the
// caller's own copy is never touched.

// IsEmpty reports whether the engine has no rules.
func (e *Engine) IsEmpty() bool { return len(e.rules) == 0 }

// Apply evaluates span against every enabled rule in priority order,
// mutating span via matched rules' actions. Rejection short-circuits
// evaluation immediately after the rejecting action, not at end-of-rule.
func (e *Engine) Apply(span Span) (*EnforcementOutcome, error) {
	outcome := NewEnforcementOutcome()

	for _, rule := range e.rules {
		if !rule.IsEnabled() {
			continue
		}

		snapshot, err := span.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("rules: snapshot span for rule %q: %w", rule.ID, err)
		}
		if !rule.Condition.Evaluate(span, snapshot) {
			continue
		}

		outcome.RecordRule(rule.ID)
		if rule.Description != nil {
			outcome.PushNote(*rule.Description)
		}

		for _, action := range rule.Actions {
			applyAction(span, action, outcome)
			if outcome.IsReject() {
				return outcome, nil
			}
		}
	}

	return outcome, nil
}

func applyAction(span Span, action Action, outcome *EnforcementOutcome) {
	switch action.Type {
	case ActionAllow:
		outcome.UpdateDecision(Decision{Kind: DecisionAllow})
	case ActionReject:
		outcome.UpdateDecision(Decision{Kind: DecisionReject, Reason: action.Reason})
	case ActionSimulate:
		outcome.UpdateDecision(Decision{Kind: DecisionSimulate, Note: action.Note})
		if action.Note != nil {
			outcome.PushNote(*action.Note)
		}
	case ActionAddTag:
		span.AddTag(action.Tag)
		outcome.PushTag(action.Tag)
	case ActionSetMetadata:
		_ = span.AddMetadata(action.Key, decodeRaw(action.Value))
		outcome.PushMetadata(action.Key, action.Value)
	case ActionMarkProcessed:
		span.MarkProcessed()
	case ActionNote:
		outcome.PushNote(action.Message)
	}
}

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
