// Package llm: provider router.
// Router resolves a provider by name at session or request time; an empty
// name means the configured default.
package llm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned by Route for names that were never registered.
var ErrUnknownProvider = errors.New("llm router: unknown provider")

// Router selects an LLMProvider for each dispatch.
type Router struct {
	mu              sync.RWMutex
	providers       map[string]LLMProvider
	defaultProvider string
}

// NewRouter creates a Router with an initial set of providers and a default key.
func NewRouter(providers map[string]LLMProvider, defaultProvider string) *Router {
	// defensive copy so the caller cannot mutate the internal map.
	ps := make(map[string]LLMProvider, len(providers))
	for k, v := range providers {
		ps[k] = v
	}
	return &Router{providers: ps, defaultProvider: defaultProvider}
}

// Register adds (or replaces) a provider under the given key.
func (r *Router) Register(key string, p LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
}

// Route returns the provider registered under name, or the default provider
// when name is empty.
func (r *Router) Route(name string) (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultProvider
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownProvider, name, r.keysLocked())
	}
	return p, nil
}

// Default returns the default provider key.
func (r *Router) Default() string {
	return r.defaultProvider
}

// Names returns the registered provider names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked()
}

func (r *Router) keysLocked() []string {
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
