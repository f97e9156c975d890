package tool

import (
	"fmt"

	"github.com/steward-labs/steward/internal/domain"
)

// Registry is the static name → Tool table. It is populated once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names and tools without an explicit valid
// trust tier are rejected here so misconfiguration fails at startup, not at
// call time.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if !t.Tier.Valid() {
		return fmt.Errorf("register tool %s: trust tier %q is not one of T1/T2/T3", t.Name, t.Tier)
	}
	if t.Execute == nil {
		return fmt.Errorf("register tool %s: nil executor", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("register tool %s: duplicate name", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool by name, or domain.ErrNotFound.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("lookup tool %s: %w", name, domain.ErrNotFound)
	}
	return t, nil
}

// Names returns all registered tool names. Order is unspecified.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// All returns every registered tool. The slice is a copy; tools themselves
// are immutable.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
