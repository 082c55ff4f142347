package rules

import (
	"encoding/json"
	"time"
)

// rawRule mirrors Rule but with Enabled as a pointer so the decoder can
// distinguish "absent" (default true) from "explicitly false".
type rawRule struct {
	ID          string    `json:"id"`
	Description *string   `json:"description"`
	Priority    uint32    `json:"priority"`
	Enabled     *bool     `json:"enabled"`
	Labels      []string  `json:"labels"`
	Condition   Condition `json:"condition"`
	Actions     []Action  `json:"actions"`
}

// UnmarshalJSON decodes a Rule, defaulting Enabled to true when the field
// is absent from the document, matching the upstream serde default.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw rawRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	enabled := true
	if raw.Enabled != nil {
		enabled = *raw.Enabled
	}
	*r = Rule{
		ID:          raw.ID,
		Description: raw.Description,
		Priority:    raw.Priority,
		Enabled:     enabled,
		Labels:      raw.Labels,
		Condition:   raw.Condition,
		Actions:     raw.Actions,
	}
	r.applyDefaults()
	return nil
}

// DefaultPriority is used when a rule document omits priority.
const DefaultPriority = uint32(100)

// Rule is a declarative policy definition applied to spans on the timeline.
type Rule struct {
	ID          string      `json:"id"`
	Description *string     `json:"description,omitempty"`
	Priority    uint32      `json:"priority"`
	Enabled     bool        `json:"enabled"`
	Labels      []string    `json:"labels"`
	Condition   Condition   `json:"condition"`
	Actions     []Action    `json:"actions"`
}

// IsEnabled reports whether the rule is currently active.
func (r Rule) IsEnabled() bool { return r.Enabled }

// applyDefaults fills in zero-value fields with the rule document defaults,
// mirroring the upstream serde defaults (#[serde(default = ...)]).
func (r *Rule) applyDefaults() {
	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
	if r.Labels == nil {
		r.Labels = []string{}
	}
	if r.Actions == nil {
		r.Actions = []Action{}
	}
	if r.Condition.Type == "" {
		r.Condition = Always()
	}
}

// HistoryEntry is one versioned revision of a Rule, appended every time a
// tenant's rule set is updated (including disabling a rule, which is itself
// a new version with Enabled=false).
type HistoryEntry struct {
	Version   uint64    `json:"version"`
	Rule      Rule      `json:"rule"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy *string   `json:"updated_by,omitempty"`
}
