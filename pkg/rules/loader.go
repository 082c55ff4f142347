package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ruleDocument matches a top-level `rules:` document.
type ruleDocument struct {
	Rules []Rule `json:"rules"`
}

// LoadRules loads rule definitions from path, which may be a single file or
// a directory (scanned recursively for *.json/*.yaml/*.yml). The result
// is deduplicated by id (a hard error on collision) and sorted by
// (priority, id).
func LoadRules(path string) ([]Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("rules: missing path %q: %w", path, err)
	}

	var loaded []Rule
	if info.IsDir() {
		loaded, err = loadFromDirectory(path)
	} else {
		loaded, err = loadFromFile(path)
	}
	if err != nil {
		return nil, err
	}

	if err := deduplicate(loaded); err != nil {
		return nil, err
	}
	sort.Slice(loaded, func(i, j int) bool {
		if loaded[i].Priority != loaded[j].Priority {
			return loaded[i].Priority < loaded[j].Priority
		}
		return loaded[i].ID < loaded[j].ID
	})
	return loaded, nil
}

func loadFromDirectory(dir string) ([]Rule, error) {
	var rules []Rule
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".yml":
		default:
			return nil
		}
		fileRules, err := loadFromFile(path)
		if err != nil {
			return err
		}
		rules = append(rules, fileRules...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rules: read directory %q: %w", dir, err)
	}
	return rules, nil
}

func loadFromFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read file %q: %w", path, err)
	}
	return parseRules(raw, path)
}

// parseRules normalises the document to JSON (YAML is a superset of JSON's
// data model, so this also handles plain JSON input) and then tries, in
// order: a `{rules: [...]}` document, a bare list, a single rule object.
func parseRules(raw []byte, path string) ([]Rule, error) {
	jsonBytes, err := yamlToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("rules: parse %q: %w", path, err)
	}

	var doc ruleDocument
	if err := json.Unmarshal(jsonBytes, &doc); err == nil && doc.Rules != nil {
		return doc.Rules, nil
	}

	var list []Rule
	if err := json.Unmarshal(jsonBytes, &list); err == nil && list != nil {
		return list, nil
	}

	var single Rule
	if err := json.Unmarshal(jsonBytes, &single); err == nil && single.ID != "" {
		return []Rule{single}, nil
	}

	return nil, fmt.Errorf("rules: unable to parse rules file %q using rules-document, list, or single-rule formats", path)
}

// yamlToJSON decodes raw as YAML (a JSON superset) into a generic value and
// re-encodes it as JSON, normalising map[interface{}]interface{} nodes
// yaml.v3 may produce into map[string]interface{} along the way.
func yamlToJSON(raw []byte) ([]byte, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(normalise(generic))
}

func normalise(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = normalise(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprintf("%v", k)] = normalise(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = normalise(val)
		}
		return out
	default:
		return node
	}
}

func deduplicate(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("rules: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
