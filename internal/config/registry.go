package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/hushcut/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by [Registry.CreateProber] when no
// factory has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ProberFactory builds a [vad.Prober] from its configuration entry.
type ProberFactory func(ProviderEntry) (vad.Prober, error)

// Registry maps prober names to their factories. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	probers map[string]ProberFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{probers: make(map[string]ProberFactory)}
}

// RegisterProber registers factory under name. A later registration with the
// same name replaces the earlier one.
func (r *Registry) RegisterProber(name string, factory ProberFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probers[name] = factory
}

// CreateProber builds the prober registered under entry.Name.
func (r *Registry) CreateProber(entry ProviderEntry) (vad.Prober, error) {
	r.mu.RLock()
	factory, ok := r.probers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create prober %q: %w", entry.Name, err)
	}
	return p, nil
}

// ProberNames returns the registered prober names in sorted order.
func (r *Registry) ProberNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probers))
	for n := range r.probers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
