// SPDX-License-Identifier: AGPL-3.0-only

// Package credentials holds secrets loaded by the host platform.
package credentials

import (
	"sync"
)

// Registry is an in-memory store of named secrets.
type Registry struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewRegistry creates an empty credentials registry.
func NewRegistry() *Registry {
	return &Registry{secrets: make(map[string]string)}
}

// Store saves a single secret under key, overwriting any previous value.
func (r *Registry) Store(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets[key] = value
}

// StoreMultiple saves every secret in the given map.
func (r *Registry) StoreMultiple(secrets map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range secrets {
		r.secrets[k] = v
	}
}

// Get returns the secret stored under key.
func (r *Registry) Get(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.secrets[key]
	return v, ok
}

// Len returns the number of stored secrets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.secrets)
}

// Clear removes all stored secrets.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = make(map[string]string)
}
