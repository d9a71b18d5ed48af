// Package command provides the command registry: the name and alias maps
// consulted by the dispatcher, the built-in command set, and the optional
// YAML manifest that overrides per-command policy.
package command

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"goatbot/internal/domain"
)

// Registry maps command names and aliases to their descriptors. It is
// constructed once at startup and passed into the dispatcher; nothing in the
// process reaches it through package globals.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*domain.CommandDescriptor
	aliases map[string]string
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byName:  make(map[string]*domain.CommandDescriptor),
		aliases: make(map[string]string),
		logger:  logger,
	}
}

// Register adds a command. Names and aliases are matched case-insensitively;
// an alias colliding with a canonical name is rejected.
func (r *Registry) Register(d *domain.CommandDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if d.Handler == nil {
		return fmt.Errorf("command %s: handler must not be nil", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(d.Name)
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	for _, alias := range d.Aliases {
		a := strings.ToLower(alias)
		if _, taken := r.byName[a]; taken {
			return fmt.Errorf("command %s: alias %s shadows a command name", name, a)
		}
		if owner, taken := r.aliases[a]; taken {
			return fmt.Errorf("command %s: alias %s already used by %s", name, a, owner)
		}
	}

	r.byName[name] = d
	for _, alias := range d.Aliases {
		r.aliases[strings.ToLower(alias)] = name
	}
	r.logger.Debug("command registered", "name", name, "aliases", d.Aliases, "role", d.RequiredRole)
	return nil
}

// Resolve returns the descriptor for a command name or alias, or nil.
// Matching is case-insensitive with no partial or fuzzy matching.
func (r *Registry) Resolve(name string) *domain.CommandDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(name)
	if d, ok := r.byName[key]; ok {
		return d
	}
	if canonical, ok := r.aliases[key]; ok {
		return r.byName[canonical]
	}
	return nil
}

// Unregister removes a command and its aliases. Used for manifest-disabled
// commands.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	d, ok := r.byName[key]
	if !ok {
		return
	}
	delete(r.byName, key)
	for _, alias := range d.Aliases {
		delete(r.aliases, strings.ToLower(alias))
	}
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []*domain.CommandDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.CommandDescriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered commands (aliases not counted).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
