// Package schema is the Schema Registry & Repairer (C2): versioned JSON
// schemas for every LLM I/O shape, with structural repair of near-miss LLM
// output before it is treated as invalid.
package schema

import (
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Registry holds compiled schemas under both a versioned name
// ("miner_output.v1") and a base alias ("miner_output") pointing at the
// current version, per spec.md §4.2.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Resolved
	raw     map[string]*jsonschema.Schema
}

// NewRegistry builds a Registry pre-loaded with the Engine's built-in
// schemas (miner_output, evaluated_claim, discovery, merge_analysis,
// assignment).
func NewRegistry() (*Registry, error) {
	r := &Registry{
		schemas: map[string]*jsonschema.Resolved{},
		raw:     map[string]*jsonschema.Schema{},
	}
	for _, def := range builtinSchemas() {
		if err := r.Register(def.version, def.schema); err != nil {
			return nil, fmt.Errorf("register %s: %w", def.version, err)
		}
		if def.alias != "" {
			if err := r.Alias(def.alias, def.version); err != nil {
				return nil, fmt.Errorf("alias %s: %w", def.alias, err)
			}
		}
	}
	return r, nil
}

// Register compiles and stores a schema under a versioned name.
func (r *Registry) Register(name string, s *jsonschema.Schema) error {
	resolved, err := s.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[name] = resolved
	r.raw[name] = s
	return nil
}

// Alias points a base name (e.g. "miner_output") at an already-registered
// versioned schema (e.g. "miner_output.v1").
func (r *Registry) Alias(alias, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved, ok := r.schemas[version]
	if !ok {
		return fmt.Errorf("unknown schema version %q", version)
	}
	r.schemas[alias] = resolved
	r.raw[alias] = r.raw[version]
	return nil
}

// Validate checks doc against the named schema and returns whether it is
// valid plus the list of validation error messages (empty when valid).
func (r *Registry) Validate(doc interface{}, schemaName string) (bool, []string) {
	r.mu.RLock()
	resolved, ok := r.schemas[schemaName]
	r.mu.RUnlock()
	if !ok {
		return false, []string{fmt.Sprintf("unknown schema %q", schemaName)}
	}
	if err := resolved.Validate(doc); err != nil {
		return false, splitValidationErrors(err)
	}
	return true, nil
}

// RawSchema returns the uncompiled schema definition for repair logic.
func (r *Registry) RawSchema(schemaName string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.raw[schemaName]
	return s, ok
}

func splitValidationErrors(err error) []string {
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}

type schemaDef struct {
	version string
	alias   string
	schema  *jsonschema.Schema
}
