package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateEngine is returned when a name is registered twice.
var ErrDuplicateEngine = errors.New("duplicate engine name")

// Registry maps engine names to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given engine name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("empty engine name")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEngine, name)
	}

	r.factories[name] = factory

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, factory Factory) {
	err := r.Register(name, factory)
	if err != nil {
		panic("engine registry: " + err.Error())
	}
}

// Lookup returns the factory for the given engine name, or nil.
func (r *Registry) Lookup(name string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.factories[name]
}

// Names returns all registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// defaultRegistry is the process-wide registry used by the package-level
// functions. Self-validation test doubles register here on import.
var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry.
func Register(name string, factory Factory) error {
	return defaultRegistry.Register(name, factory)
}

// MustRegister is like Register but panics on error.
func MustRegister(name string, factory Factory) {
	defaultRegistry.MustRegister(name, factory)
}

// Lookup returns the factory for name from the default registry, or nil.
func Lookup(name string) Factory {
	return defaultRegistry.Lookup(name)
}

// Names returns all names in the default registry, sorted.
func Names() []string {
	return defaultRegistry.Names()
}
