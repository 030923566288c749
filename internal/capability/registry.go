// Package capability maps tool names to typed handlers. The chat bridge
// dispatches by name; adding a capability is a registration, not a new branch
// in a monolithic switch.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknown is returned by Dispatch for an unregistered name.
	ErrUnknown = errors.New("unknown capability")
	// ErrBadInput is returned when a handler rejects its input payload.
	ErrBadInput = errors.New("invalid capability input")
)

// Handler executes a capability against a raw JSON input and returns a
// JSON-serializable result.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Capability is a named operation with a declared input schema.
type Capability struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Handler     Handler         `json:"-"`
}

// Registry holds the capability table. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability. Duplicate names are a programming error.
func (r *Registry) Register(c Capability) error {
	if c.Name == "" {
		return errors.New("capability name is empty")
	}
	if c.Handler == nil {
		return fmt.Errorf("capability %s has no handler", c.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[c.Name]; exists {
		return fmt.Errorf("capability %s already registered", c.Name)
	}
	r.caps[c.Name] = c
	return nil
}

// Dispatch runs the named capability.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage) (any, error) {
	r.mu.RLock()
	c, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return c.Handler(ctx, input)
}

// List returns all registered capabilities sorted by name.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
