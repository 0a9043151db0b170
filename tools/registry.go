// SPDX-License-Identifier: AGPL-3.0-only

// Package tools holds the registry of functions the model may call during a
// chat completion, together with their schemas and retry budgets.
package tools

import (
	"context"
	"sync"
)

// DefaultMaxRetries is the retry budget applied when a tool is registered
// without an explicit one, and when an unknown tool name is queried.
const DefaultMaxRetries = 2

// Func is an executable tool. It receives the (coerced) input parameters and
// returns an arbitrary result, which the execution adapter classifies.
type Func func(ctx context.Context, input map[string]interface{}) (interface{}, error)

// Property describes one parameter in a tool's input schema.
type Property struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Schema is a JSON-Schema-like description of a tool's input.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Definition is the model-facing description of a registered tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// Group is a tool group entry as supplied by the host platform. Actions lists
// the action names the group exposes.
type Group struct {
	Actions []string `json:"action"`
}

// Registry maps tool names to functions and definitions. Mutation is expected
// to happen outside of an in-flight completion run; the mutex only protects
// against torn reads, not against reconfiguring mid-run.
type Registry struct {
	mu      sync.RWMutex
	funcs   map[string]Func
	defs    map[string]Definition
	retries map[string]int
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs:   make(map[string]Func),
		defs:    make(map[string]Definition),
		retries: make(map[string]int),
	}
}

// Register adds or overwrites a tool. Last write wins. A negative maxRetries
// selects DefaultMaxRetries.
func (r *Registry) Register(name string, fn Func, schema Schema, maxRetries int) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if schema.Type == "" {
		schema.Type = "object"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	r.defs[name] = Definition{
		Name:        name,
		Description: describeTool(name),
		InputSchema: schema,
	}
	r.retries[name] = maxRetries
}

// RegisterDefinition is like Register but takes a full definition, allowing a
// custom description.
func (r *Registry) RegisterDefinition(def Definition, fn Func, maxRetries int) {
	r.Register(def.Name, fn, def.InputSchema, maxRetries)

	r.mu.Lock()
	defer r.mu.Unlock()
	if def.Description != "" {
		d := r.defs[def.Name]
		d.Description = def.Description
		r.defs[def.Name] = d
	}
}

// RegisterGroups registers every action of every group whose function is
// present in fns. Schemas are looked up per action; actions without a schema
// get an empty object schema. The description applies to all registered
// tools, as the host supplies one context string per load.
func (r *Registry) RegisterGroups(groups map[string]Group, fns map[string]Func, schemas map[string]Schema, description string) {
	for _, group := range groups {
		for _, action := range group.Actions {
			fn, ok := fns[action]
			if !ok {
				continue
			}
			schema := schemas[action]
			r.Register(action, fn, schema, -1)
			if description != "" {
				r.mu.Lock()
				d := r.defs[action]
				d.Description = description
				r.defs[action] = d
				r.mu.Unlock()
			}
		}
	}
}

// Function returns the executable registered under name.
func (r *Registry) Function(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// MaxRetries returns the retry budget for name, or DefaultMaxRetries when the
// tool is unknown.
func (r *Registry) MaxRetries(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.retries[name]; ok {
		return n
	}
	return DefaultMaxRetries
}

// Definitions returns a snapshot of all registered tool definitions, keyed by
// name. This is what gets advertised to the model.
func (r *Registry) Definitions() map[string]Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Definition, len(r.defs))
	for name, def := range r.defs {
		out[name] = def
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Clear removes all registered tools. Idempotent.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs = make(map[string]Func)
	r.defs = make(map[string]Definition)
	r.retries = make(map[string]int)
}

func describeTool(name string) string {
	return "Execute " + name + " action"
}

// PropertiesMap renders the schema's properties as the loosely typed map the
// provider SDKs expect.
func (s Schema) PropertiesMap() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]interface{}{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop
	}
	return props
}

// AsMap renders the whole schema as a loosely typed map.
func (s Schema) AsMap() map[string]interface{} {
	out := map[string]interface{}{
		"type":       s.Type,
		"properties": s.PropertiesMap(),
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}
