package prompts

import (
	"fmt"
	"sync"
)

// Registry maps block IDs to blocks. Registering an ID again replaces it.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	blocks map[string]Block
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry holding the built-in blocks.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, b := range builtin {
			defaultRegistry.Register(b)
		}
	})
	return defaultRegistry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{blocks: make(map[string]Block)}
}

// Register adds b under b.ID.
func (r *Registry) Register(b Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[b.ID] = b
}

// Lookup returns the block registered under id.
func (r *Registry) Lookup(id string) (Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blocks[id]
	if !ok {
		return Block{}, fmt.Errorf("prompt block not found: %s", id)
	}
	return b, nil
}

// Content returns the content of id, or "" when it is not registered.
func (r *Registry) Content(id string) string {
	b, _ := r.Lookup(id)
	return b.Content
}
