package platform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

// Registry holds the enabled adapters keyed by platform code.
// Registration happens at startup, lookups are read-mostly.
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.PlatformCode]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.PlatformCode]Adapter)}
}

// Register adds an adapter. A second adapter with the same code is rejected.
func (r *Registry) Register(a Adapter) error {
	code := a.Info().Code
	if code == "" {
		return types.ErrInvalidPlatformName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[code]; exists {
		return fmt.Errorf("%w: %s", types.ErrDuplicatePlatform, code)
	}
	r.adapters[code] = a
	return nil
}

// Get returns the adapter for code.
func (r *Registry) Get(code types.PlatformCode) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrPlatformNotFound, code)
	}
	return a, nil
}

// List returns every registered adapter sorted by code.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info().Code < out[j].Info().Code })
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Resolve picks the adapters a request targets. An empty request selects
// every registered adapter. Platforms that are unknown or cannot serve
// the search kind are returned in skipped so the caller can report them.
func (r *Registry) Resolve(requested []types.PlatformCode, kind types.SearchKind) (selected []Adapter, skipped []types.PlatformCode) {
	if len(requested) == 0 {
		for _, a := range r.List() {
			if a.Info().Supports(kind) {
				selected = append(selected, a)
			}
		}
		return selected, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[types.PlatformCode]bool, len(requested))
	for _, code := range requested {
		if seen[code] {
			continue
		}
		seen[code] = true

		a, ok := r.adapters[code]
		if !ok || !a.Info().Supports(kind) {
			skipped = append(skipped, code)
			continue
		}
		selected = append(selected, a)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Info().Code < selected[j].Info().Code })
	return selected, skipped
}

// Close releases adapters that hold resources.
func (r *Registry) Close() error {
	var firstErr error
	for _, a := range r.List() {
		if c, ok := a.(Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
