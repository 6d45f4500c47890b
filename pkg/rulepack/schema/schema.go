// Package schema wraps github.com/santhosh-tekuri/jsonschema/v5 to validate
// rule-pack artifacts against the JSON Schemas under categories/_shared/,
// per spec.md §6 "Every artifact validates against its schema".
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry compiles and caches schemas by artifact file name.
type Registry struct {
	dir       string
	compiled  map[string]*jsonschema.Schema
}

// NewRegistry builds a Registry rooted at sharedSchemaDir
// (categories/_shared/); an artifact's schema file is
// "<artifact>.schema.json", e.g. "field_rules.json.schema.json".
func NewRegistry(sharedSchemaDir string) *Registry {
	return &Registry{dir: sharedSchemaDir, compiled: map[string]*jsonschema.Schema{}}
}

func (r *Registry) schemaPathFor(artifact string) string {
	return r.dir + "/" + artifact + ".schema.json"
}

func (r *Registry) load(artifact string) (*jsonschema.Schema, error) {
	if s, ok := r.compiled[artifact]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	path := r.schemaPathFor(artifact)
	s, err := compiler.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: compiling %s: %w", path, err)
	}
	r.compiled[artifact] = s
	return s, nil
}

// Validate checks raw JSON bytes for artifact against its schema.
func (r *Registry) Validate(artifact string, raw []byte) error {
	s, err := r.load(artifact)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("schema: %s is not valid JSON: %w", artifact, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %s: %w", artifact, err)
	}
	return nil
}
