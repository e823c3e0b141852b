package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vrsandeep/mango-pages/internal/models"
)

// Registry maps sources to the provider that resolves their pages.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.Source]models.Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[models.Source]models.Provider)}
}

// Register adds a new provider to the registry. It's called at startup.
func (r *Registry) Register(p models.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := p.GetInfo()
	if _, exists := r.providers[info.Source]; exists {
		// Panic is appropriate here as it's a developer error during setup.
		panic(fmt.Sprintf("provider for source '%s' is already registered", info.Source))
	}
	r.providers[info.Source] = p
}

// Get returns the provider for a source.
func (r *Registry) Get(source models.Source) (models.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[source]
	return p, ok
}

// GetAll returns a list of information for all registered providers.
func (r *Registry) GetAll() []models.ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]models.ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p.GetInfo())
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].Source < providers[j].Source })
	return providers
}

// NewResolver builds a resolver for an item of the given source. Sources
// without a provider report models.ErrUnsupportedSource.
func (r *Registry) NewResolver(source models.Source, itemID string, items models.ItemRepository) (models.Resolver, error) {
	p, ok := r.Get(source)
	if !ok {
		return nil, fmt.Errorf("source %s: %w", source, models.ErrUnsupportedSource)
	}
	return p.NewResolver(itemID, items)
}
