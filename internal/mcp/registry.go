package mcp

import (
	"context"
	"log"
	"sync"

	"msgmcp/internal/model"
)

type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamBoolean ParameterType = "boolean"
	ParamObject  ParameterType = "object"
	ParamArray   ParameterType = "array"
)

// ToolParameter describes one argument of a tool's schema. Default is
// documentation for clients; tools apply their own defaults when an optional
// argument is absent.
type ToolParameter struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Default     *string       `json:"default,omitempty"`
}

// ToolDefinition is the read-only projection of a Tool exposed via
// tools/list.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// Tool is a named, described, schema-carrying callable unit. Implementations
// are stateless beyond their injected collaborators and are owned by the
// Registry for the process lifetime.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParameter
	Execute(ctx context.Context, args map[string]interface{}) model.ToolResult
}

// Registry maps tool names to Tool instances. Registration happens once at
// startup before any call traffic; List and Get afterwards are effectively
// lock-free reads (the mutex only matters during the registration phase).
type Registry struct {
	mu      sync.RWMutex
	order   []string
	byName  map[string]Tool
	aliases map[string]string

	// Logger is optional; when nil the standard library's log package is
	// used. Only duplicate registrations are logged.
	Logger *log.Logger
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool), aliases: make(map[string]string)}
}

// Register adds a tool under its own name. A duplicate name silently
// replaces the prior tool and keeps the original registration-order slot;
// the replacement is logged as a diagnostic since it is almost always a
// wiring mistake.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}
	name := tool.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		r.logf("registry: tool %q re-registered, previous entry replaced", name)
	} else {
		r.order = append(r.order, name)
	}
	r.byName[name] = tool
}

// RegisterAlias makes alias resolve to the tool registered under name.
// Aliases never appear in List output.
func (r *Registry) RegisterAlias(alias, name string) {
	if alias == "" || alias == name {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = name
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[name]
	if !ok {
		if target, isAlias := r.aliases[name]; isAlias {
			tool, ok = r.byName[target]
		}
	}
	return tool, ok
}

// List returns one definition per registered tool in registration order.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool, ok := r.byName[name]
		if !ok {
			continue
		}
		defs = append(defs, Definition(tool))
	}
	return defs
}

// Definition builds the read-only projection of a tool. The parameter slice
// is copied so callers cannot mutate a tool's schema through it.
func Definition(tool Tool) ToolDefinition {
	params := tool.Parameters()
	copied := make([]ToolParameter, len(params))
	copy(copied, params)
	return ToolDefinition{
		Name:        tool.Name(),
		Description: tool.Description(),
		Parameters:  copied,
	}
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r != nil && r.Logger != nil {
		r.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
