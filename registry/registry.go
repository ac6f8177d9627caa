// Package registry maps names to implementations with an explicit
// lifecycle. A Registry is created with New, filled with Register, passed by
// reference to whoever needs lookups and retired with Shutdown.
package registry

import (
	"sort"
	"sync"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
)

type Registry[T any] struct {
	lock   sync.RWMutex
	items  map[string]T
	closed bool
}

func New[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register adds v under name. Names are unique.
func (r *Registry[T]) Register(name string, v T) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return errors.Newf("registry is shut down, cannot register %q", name)
	}
	if name == "" {
		return errors.New("registry name must not be empty")
	}
	if _, exists := r.items[name]; exists {
		return errors.Newf("%q is already registered", name)
	}
	r.items[name] = v
	return nil
}

// Lookup returns the implementation registered under name.
func (r *Registry[T]) Lookup(name string) (T, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	v, ok := r.items[name]
	if !ok {
		var zero T
		return zero, errors.Mark(errors.Newf("%q is not registered (known: %v)", name, r.namesLocked()), dbxerr.ErrNotFound)
	}
	return v, nil
}

// Names lists the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.namesLocked()
}

func (r *Registry[T]) namesLocked() []string {
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown drops every registration. Later registrations fail.
func (r *Registry[T]) Shutdown() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.items = make(map[string]T)
	r.closed = true
}
