// Package tools defines the tools available to the assistant and the
// dispatcher that routes model tool calls to their handlers.
package tools

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
	// Timeout overrides the registry's dispatch timeout for this tool.
	// Long-running tools (the multi-round organize delegation) need a
	// budget sized for several model calls, not one shell command.
	Timeout time.Duration `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools   map[string]*Tool
	logger  *slog.Logger
	timeout time.Duration
}

// NewRegistry creates an empty tool registry. Tools are added by the
// Register* functions in this package.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// SetDispatchTimeout bounds each individual tool execution. Tools
// carrying their own Timeout are unaffected.
func (r *Registry) SetDispatchTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns registered tool names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools in the wire shape the model expects.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.Names() {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}
