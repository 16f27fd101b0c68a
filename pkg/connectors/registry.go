package connectors

import (
	"sort"
	"sync"

	"github.com/Ramsey-B/willow/pkg/models"
)

// Registry holds the available connectors keyed by source key. Registration
// happens at startup; lookups after that are read-only and safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry creates an empty connector registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]Connector),
	}
}

// Register adds a connector under its descriptor key. Registering the same key
// twice replaces the earlier connector.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Descriptor().Key] = c
}

// Get returns the connector for a source key
func (r *Registry) Get(key string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[key]
	return c, ok
}

// List returns descriptors for all registered connectors, sorted by key
func (r *Registry) List() []models.SourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]models.SourceDescriptor, 0, len(r.connectors))
	for _, c := range r.connectors {
		descriptors = append(descriptors, c.Descriptor())
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Key < descriptors[j].Key
	})
	return descriptors
}
