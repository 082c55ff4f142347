package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danvoulez/UniverseLogLine-sub001/pkg/span"
)

func strPtr(s string) *string { return &s }

func TestAllowAndTagRule(t *testing.T) {
	desc := "allow processed spans"
	rule := Rule{
		ID:          "allow",
		Description: &desc,
		Priority:    10,
		Enabled:     true,
		Condition:   Always(),
		Actions: []Action{
			{Type: ActionMarkProcessed},
			{Type: ActionAddTag, Tag: "matched"},
		},
	}
	engine := NewEngine([]Rule{rule})
	s := span.New("node", "demo")

	outcome, err := engine.Apply(s)
	require.NoError(t, err)
	require.True(t, s.Processed)
	require.Equal(t, []string{"matched"}, s.Tags)
	require.Equal(t, []string{"allow"}, outcome.AppliedRules)
}

func TestRejectRuleShortCircuits(t *testing.T) {
	rule := Rule{
		ID:       "deny",
		Priority: 1,
		Enabled:  true,
		Condition: Condition{
			Type:  CondEquals,
			Field: "title",
			Value: json.RawMessage(`"example span"`),
		},
		Actions: []Action{{Type: ActionReject, Reason: "blocked by rule"}},
	}
	engine := NewEngine([]Rule{rule})
	s := span.New("node", "example span")

	outcome, err := engine.Apply(s)
	require.NoError(t, err)
	require.True(t, outcome.IsReject())
	require.Equal(t, "blocked by rule", outcome.Decision.Reason)
}

func TestRuleOrderByPriorityThenID(t *testing.T) {
	low := Rule{ID: "b", Priority: 50, Enabled: true, Condition: Always(), Actions: []Action{{Type: ActionNote, Message: "b"}}}
	high := Rule{ID: "a", Priority: 10, Enabled: true, Condition: Always(), Actions: []Action{{Type: ActionNote, Message: "a"}}}
	engine := NewEngine([]Rule{low, high})
	require.Equal(t, "a", engine.Rules()[0].ID)
	require.Equal(t, "b", engine.Rules()[1].ID)
}

func TestDecisionMergeRejectDominates(t *testing.T) {
	d := Decision{Kind: DecisionAllow}
	d = d.Merge(Decision{Kind: DecisionSimulate, Note: strPtr("note1")})
	require.Equal(t, DecisionSimulate, d.Kind)
	d = d.Merge(Decision{Kind: DecisionReject, Reason: "nope"})
	require.Equal(t, DecisionReject, d.Kind)
	d = d.Merge(Decision{Kind: DecisionAllow})
	require.Equal(t, DecisionReject, d.Kind, "reject must dominate any later decision")
}

func TestDisabledRuleIsSkipped(t *testing.T) {
	rule := Rule{ID: "off", Priority: 1, Enabled: false, Condition: Always(), Actions: []Action{{Type: ActionMarkProcessed}}}
	engine := NewEngine([]Rule{rule})
	s := span.New("node", "demo")
	outcome, err := engine.Apply(s)
	require.NoError(t, err)
	require.False(t, s.Processed)
	require.Empty(t, outcome.AppliedRules)
}

func TestFieldPathNestedLookup(t *testing.T) {
	snapshot := map[string]any{
		"metadata": map[string]any{"author": map[string]any{"name": "Ada"}},
	}
	v, ok := FieldPath("metadata.author.name").Locate(snapshot)
	require.True(t, ok)
	require.Equal(t, "Ada", v)
}
