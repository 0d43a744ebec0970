package attribute

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry is the process-wide table of attribute descriptors. It is
// populated once at startup, frozen, and read-only afterwards; components
// receive it by handle rather than reaching for ambient global state.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Attribute
	frozen bool
}

// NewRegistry creates an empty attribute registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Attribute{}}
}

// Register adds a descriptor to the registry. Registering a duplicate name or
// registering after Freeze is an error.
func (r *Registry) Register(attr *Attribute) error {
	if attr == nil {
		return errors.New("cannot register nil attribute")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Errorf("registry is frozen; cannot register attribute %q", attr.Name())
	}
	if _, ok := r.byName[attr.Name()]; ok {
		return errors.Errorf("attribute %q already registered", attr.Name())
	}
	r.byName[attr.Name()] = attr
	return nil
}

// Freeze marks the registry read-only. Further Register calls fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (*Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attr, ok := r.byName[name]
	return attr, ok
}

// Names returns the registered attribute names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
