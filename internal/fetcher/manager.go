package fetcher

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/vrsandeep/mango-pages/internal/downloader"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers"
	"github.com/vrsandeep/mango-pages/internal/httpclient"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/pagestore"
	"github.com/vrsandeep/mango-pages/internal/store"
)

// ManagerOptions holds what every fetcher of a Manager shares.
type ManagerOptions struct {
	Items     models.ItemRepository
	Pages     *pagestore.Store
	Registry  *providers.Registry
	Client    *http.Client
	Checker   httpclient.Checker
	Observer  downloader.Observer
	Preload   PreloadOptions
	ScratchID string
}

// Manager keeps one Fetcher per open item, so that all callers for an item
// share its in-flight set, and owns the preview (scratch) item.
type Manager struct {
	opts    ManagerOptions
	scratch *store.MemoryStore

	mu       sync.Mutex
	fetchers map[string]*Fetcher
	preview  *Fetcher

	// previewMu serializes preview replacement; it is taken before mu.
	previewMu sync.Mutex
}

// NewManager creates a Manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.ScratchID == "" {
		opts.ScratchID = "tmp"
	}
	return &Manager{
		opts:     opts,
		scratch:  store.NewMemoryStore(),
		fetchers: make(map[string]*Fetcher),
	}
}

// ErrScratchID is returned when a stored item uses the reserved preview id.
var ErrScratchID = errors.New("item id is reserved for previews")

// Open returns the fetcher of a stored item, creating it on first use.
func (m *Manager) Open(itemID string) (*Fetcher, error) {
	if itemID == m.opts.ScratchID {
		return nil, ErrScratchID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.fetchers[itemID]; ok {
		return f, nil
	}

	source, err := m.opts.Items.GetSource(itemID)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", itemID, err)
	}
	resolver, err := m.opts.Registry.NewResolver(source, itemID, m.opts.Items)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", itemID, err)
	}

	f := m.newFetcher(itemID, m.opts.Items, resolver, false)
	m.fetchers[itemID] = f
	log.Printf("Opened item %s (source %s)", itemID, source)
	return f, nil
}

// Get returns the fetcher of an open item.
func (m *Manager) Get(itemID string) (*Fetcher, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if itemID == m.opts.ScratchID && m.preview != nil {
		return m.preview, true
	}
	f, ok := m.fetchers[itemID]
	return f, ok
}

// Close closes the fetcher of an item, if open.
func (m *Manager) Close(itemID string) error {
	m.mu.Lock()
	f, ok := m.fetchers[itemID]
	delete(m.fetchers, itemID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return f.Close()
}

// OpenPreview replaces the current preview with item, which is not stored.
// Its pages land in the scratch folder, wiped before and after the preview.
func (m *Manager) OpenPreview(item models.Item) (*Fetcher, error) {
	m.previewMu.Lock()
	defer m.previewMu.Unlock()

	if err := m.closePreview(); err != nil {
		return nil, err
	}
	if err := m.opts.Pages.ClearAll(m.opts.ScratchID); err != nil {
		return nil, err
	}

	item.ID = m.opts.ScratchID
	m.scratch.Put(item)

	resolver, err := m.opts.Registry.NewResolver(item.Source, item.ID, m.scratch)
	if err != nil {
		m.scratch.Remove(item.ID)
		return nil, fmt.Errorf("preview: %w", err)
	}

	f := m.newFetcher(item.ID, m.scratch, resolver, true)
	m.mu.Lock()
	m.preview = f
	m.mu.Unlock()
	return f, nil
}

// ClosePreview closes the preview fetcher and wipes the scratch folder.
func (m *Manager) ClosePreview() error {
	m.previewMu.Lock()
	defer m.previewMu.Unlock()
	return m.closePreview()
}

func (m *Manager) closePreview() error {
	m.mu.Lock()
	f := m.preview
	m.preview = nil
	m.mu.Unlock()
	if f == nil {
		return nil
	}
	err := f.Close()
	m.scratch.Remove(m.opts.ScratchID)
	return err
}

// CloseAll closes every open fetcher, the preview included.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	fetchers := make([]*Fetcher, 0, len(m.fetchers))
	for _, f := range m.fetchers {
		fetchers = append(fetchers, f)
	}
	m.fetchers = make(map[string]*Fetcher)
	m.mu.Unlock()

	var errs []error
	for _, f := range fetchers {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.ClosePreview(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Providers lists the registered providers.
func (m *Manager) Providers() []models.ProviderInfo {
	return m.opts.Registry.GetAll()
}

// Pages returns the page store shared by every fetcher.
func (m *Manager) Pages() *pagestore.Store {
	return m.opts.Pages
}

// ScratchID is the item id used for previews.
func (m *Manager) ScratchID() string {
	return m.opts.ScratchID
}

func (m *Manager) newFetcher(itemID string, items models.ItemRepository, resolver models.Resolver, scratch bool) *Fetcher {
	return New(Options{
		ItemID:   itemID,
		Items:    items,
		Pages:    m.opts.Pages,
		Resolver: resolver,
		Client:   m.opts.Client,
		Checker:  m.opts.Checker,
		Observer: m.opts.Observer,
		Scratch:  scratch,
		Preload:  m.opts.Preload,
	})
}
