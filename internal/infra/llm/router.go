// Package llm: provider router.
// Router selects an LLMProvider at request time: the configured default, or
// a named provider when the caller pins one.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Router selects a LLMProvider for each request.
type Router struct {
	mu              sync.RWMutex
	providers       map[string]LLMProvider
	defaultProvider string
}

// NewRouter creates a Router with an initial set of providers and a default key.
func NewRouter(providers map[string]LLMProvider, defaultProvider string) *Router {
	ps := make(map[string]LLMProvider, len(providers))
	for k, v := range providers {
		ps[k] = v
	}
	return &Router{providers: ps, defaultProvider: defaultProvider}
}

// Register adds (or replaces) a provider under the given key.
func (r *Router) Register(key string, p LLMProvider) {
	r.mu.Lock()
	r.providers[key] = p
	r.mu.Unlock()
}

// Route returns the default provider.
// Returns an error if the default provider is not registered.
func (r *Router) Route(ctx context.Context) (LLMProvider, error) {
	return r.RouteTo(ctx, r.defaultProvider)
}

// RouteTo returns the provider registered under key.
func (r *Router) RouteTo(_ context.Context, key string) (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("llm router: provider %q not registered (available: %v)", key, r.keysLocked())
	}
	return p, nil
}

// Keys returns the registered provider names, sorted.
func (r *Router) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked()
}

// HealthCheck probes every registered provider and returns the failures by key.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	ps := make(map[string]LLMProvider, len(r.providers))
	for k, v := range r.providers {
		ps[k] = v
	}
	r.mu.RUnlock()

	failures := map[string]error{}
	for k, p := range ps {
		if err := p.HealthCheck(ctx); err != nil {
			failures[k] = err
		}
	}
	return failures
}

func (r *Router) keysLocked() []string {
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
