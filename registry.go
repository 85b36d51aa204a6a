package gpuexec

import (
	"slices"
	"sync"
)

// Factory builds a renderer of one backend for ctx. It returns an error
// wrapping ErrCapabilityAbsent when ctx cannot serve the backend.
type Factory func(ctx Context, cfg Config) (Renderer, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[BackendKind]Factory)
)

// Register registers the factory for kind.
// This is typically called from init() functions in backend packages.
// A second registration for the same kind replaces the first.
func Register(kind BackendKind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[kind] = factory
}

// Unregister removes the factory for kind.
// This is useful for testing.
func Unregister(kind BackendKind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, kind)
}

// IsRegistered reports whether a factory for kind is registered.
func IsRegistered(kind BackendKind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[kind]
	return ok
}

// Available returns the registered backend kinds in ascending order.
func Available() []BackendKind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]BackendKind, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

func lookupFactory(kind BackendKind) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}
