package metric

import (
	"github.com/terrorizer1980/jetstream/internal/config"
	jserrors "github.com/terrorizer1980/jetstream/internal/errors"
)

// Registry holds metric definitions keyed by name, preserving registration
// order so computed output is deterministic.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// RegistryFromConfig builds a registry from the configured metric list.
func RegistryFromConfig(metrics []config.MetricConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, mc := range metrics {
		def, err := DefinitionFromConfig(mc)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register adds a definition. Registering a duplicate name is a config
// error.
func (r *Registry) Register(def Definition) error {
	if _, ok := r.defs[def.Name]; ok {
		return jserrors.NewConfigError("", "duplicate metric definition: %s", def.Name)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns the definition for name; unknown names are a config error.
func (r *Registry) Get(name string) (Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, jserrors.NewConfigError("", "unknown metric: %s", name)
	}
	return def, nil
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.order)
}
