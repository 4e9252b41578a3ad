package provider

import (
	"context"
	"strings"
	"sync"
)

// fallbackOrder fixes the failover sequence: when a provider fails, the next
// whitelisted and available provider after it in this order takes over.
// Gemini is deliberately absent -- it only serves requests that name it
// explicitly.
var fallbackOrder = []string{"local", "groq", "mistral", "openrouter", "openai"}

// Registry holds the configured providers and answers routing lookups.
// It is safe for concurrent use; registration normally happens once at
// startup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name, replacing any previous
// provider with that name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// Get returns the provider registered under name, or nil.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[strings.ToLower(name)]
}

// GetForRoute maps a routing decision onto a provider: LOCAL always means
// the local provider, anything else uses the requested cloud provider.
func (r *Registry) GetForRoute(route, cloudProvider string) Provider {
	if strings.EqualFold(route, "LOCAL") {
		return r.Get("local")
	}
	return r.Get(cloudProvider)
}

// GetFallback returns the next provider after current in the fallback order
// that is whitelisted and available, or nil when none remains. A nil or
// empty whitelist admits every provider in the fallback order.
func (r *Registry) GetFallback(ctx context.Context, current string, whitelist []string) Provider {
	allowed := func(name string) bool {
		if len(whitelist) == 0 {
			return true
		}
		for _, w := range whitelist {
			if strings.EqualFold(w, name) {
				return true
			}
		}
		return false
	}

	currentIdx := -1
	for i, name := range fallbackOrder {
		if strings.EqualFold(name, current) {
			currentIdx = i
			break
		}
	}

	for _, name := range fallbackOrder[currentIdx+1:] {
		if !allowed(name) {
			continue
		}
		p := r.Get(name)
		if p != nil && p.Available(ctx) {
			return p
		}
	}
	return nil
}

// ListAvailable returns the names of all providers that report availability,
// in fallback order first and any extras (gemini) after.
func (r *Registry) ListAvailable(ctx context.Context) []string {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	var names []string
	for _, name := range fallbackOrder {
		if p, ok := providers[name]; ok && p.Available(ctx) {
			names = append(names, name)
			delete(providers, name)
		} else {
			delete(providers, name)
		}
	}
	for name, p := range providers {
		if p.Available(ctx) {
			names = append(names, name)
		}
	}
	return names
}
