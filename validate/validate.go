// Package validate wraps santhosh-tekuri/jsonschema/v6 as a pluggable
// rpc.Interceptor that rejects a call's input before it ever reaches
// the transport when it fails a per-path JSON schema.
//
// Schemas register on a Compiler under a synthetic resource URL, then
// compile once and cache, keyed per procedure path. The engine itself
// never sees JSON Schema: a registered schema is only a predicate it
// runs through the ordinary interceptor chain.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	rpc "github.com/nugget/bridgerpc"
)

// Validator compiles and caches JSON schemas keyed by procedure path.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// New creates an empty Validator. Use Register to add schemas before
// wiring Interceptor into a Client.
func New() *Validator {
	return &Validator{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON (a JSON Schema document) and associates
// it with path. Calling Register again for the same path replaces its
// schema.
func (v *Validator) Register(path string, schemaJSON string) error {
	unmarshaled, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("unmarshal schema for %q: %w", path, err)
	}

	resourceURL := "bridgerpc://schemas/" + path
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, unmarshaled); err != nil {
		return fmt.Errorf("register schema resource for %q: %w", path, err)
	}

	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("compile schema for %q: %w", path, err)
	}

	v.mu.Lock()
	v.schemas[path] = compiled
	v.mu.Unlock()
	return nil
}

// Validate checks input (already decoded to a Go value, e.g. via
// json.Unmarshal into map[string]any) against path's registered
// schema. Paths with no registered schema always pass.
func (v *Validator) Validate(path string, input any) error {
	v.mu.RLock()
	schema, ok := v.schemas[path]
	v.mu.RUnlock()
	if !ok {
		return nil
	}
	return schema.Validate(input)
}

// Interceptor returns an rpc.Interceptor that validates rc.Input
// against rc.Path's registered schema before calling next, surfacing a
// *rpc.ValidationError on failure.
func (v *Validator) Interceptor() rpc.Interceptor {
	return func(ctx context.Context, rc *rpc.RequestContext, next rpc.Next) (any, error) {
		v.mu.RLock()
		schema, ok := v.schemas[rc.Path]
		v.mu.RUnlock()
		if !ok {
			return next(ctx, rc)
		}

		decoded, err := toJSONValue(rc.Input)
		if err != nil {
			return nil, &rpc.ValidationError{Path: rc.Path, Issues: []string{"input is not JSON-serializable: " + err.Error()}}
		}

		if err := schema.Validate(decoded); err != nil {
			return nil, &rpc.ValidationError{Path: rc.Path, Issues: []string{err.Error()}}
		}

		return next(ctx, rc)
	}
}

// toJSONValue round-trips v through JSON to the dynamic representation
// jsonschema.Schema.Validate expects (map[string]any/[]any/primitives),
// mirroring stableStringify's canonicalization approach for the same
// reason: an arbitrary Go struct isn't directly walkable by the schema
// validator.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}
