package timeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// SchemaRegistry holds an optional per-tenant JSON Schema that incoming
// span payloads are validated against before Append. A tenant with no
// registered schema is unvalidated (payloads are free-form JSON, §9).
type SchemaRegistry struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{compiled: make(map[string]*jsonschema.Schema)}
}

// Register compiles and stores schemaJSON for tenant, replacing any
// previously registered schema.
func (r *SchemaRegistry) Register(tenant string, schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + tenant + "/schema.json"
	if err := compiler.AddResource(url, bytesReader(schemaJSON)); err != nil {
		return fmt.Errorf("timeline: add schema resource for tenant %q: %w", tenant, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("timeline: compile schema for tenant %q: %w", tenant, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled[tenant] = schema
	return nil
}

// LoadSchemas registers every `<tenant>.schema.json` file found directly
// under dir, keyed by the tenant named in its filename.
func LoadSchemas(registry *SchemaRegistry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("timeline: read schema directory %q: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".schema.json") {
			continue
		}
		tenant := strings.TrimSuffix(entry.Name(), ".schema.json")
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("timeline: read schema file %q: %w", entry.Name(), err)
		}
		if err := registry.Register(tenant, raw); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks payload against tenant's registered schema, if any. A
// tenant with no registered schema always passes.
func (r *SchemaRegistry) Validate(tenant string, payload any) error {
	r.mu.RLock()
	schema, ok := r.compiled[tenant]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("timeline: payload failed schema validation for tenant %q: %w", tenant, err)
	}
	return nil
}
