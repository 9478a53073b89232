// Package tools holds the local functions the remote model may call and
// the dispatcher that runs them.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler runs a tool with its parsed arguments and returns content for the model.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Definition describes a tool to the model.
type Definition struct {
	// Name is the unique identifier for the tool (e.g., "get_current_time").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters is the JSON schema of the tool's argument object.
	// Example:
	//   map[string]any{
	//       "type": "object",
	//       "properties": map[string]any{
	//           "reason": map[string]any{"type": "string"},
	//       },
	//       "required": []string{"reason"},
	//   }
	Parameters map[string]any `json:"parameters"`
}

// Tool pairs a definition with its handler.
type Tool struct {
	Definition
	Handler Handler `json:"-"`
}

// Wire returns the tool in the session.update "tools" shape.
func (d Definition) Wire() map[string]any {
	params := d.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type":        "function",
		"name":        d.Name,
		"description": d.Description,
		"parameters":  params,
	}
}

// Registry is a concurrency-safe set of tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique and the reserved
// end-conversation name cannot be registered.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Name == EndConversationName {
		return fmt.Errorf("tool name %q is reserved", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
