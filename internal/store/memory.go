package store

import (
	"sync"
	"time"

	"github.com/vrsandeep/mango-pages/internal/models"
)

// MemoryStore is an ItemRepository that never touches the database. It backs
// scratch/preview items, which are not meant to survive the session.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*models.Item
}

var _ models.ItemRepository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*models.Item)}
}

// Put registers or replaces an item, resetting its lookahead state.
func (m *MemoryStore) Put(item models.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	item.PageCursor = 0
	item.PageURLTable = nil
	item.CreatedAt = now
	item.UpdatedAt = now
	m.items[item.ID] = &item
}

// Remove forgets an item.
func (m *MemoryStore) Remove(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID)
}

// Get returns a copy of the item.
func (m *MemoryStore) Get(itemID string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	cp.PageURLTable = append([]string(nil), item.PageURLTable...)
	return &cp, nil
}

func (m *MemoryStore) with(itemID string, fn func(item *models.Item)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	fn(item)
	return nil
}

func (m *MemoryStore) GetPageCount(itemID string) (count int, err error) {
	err = m.with(itemID, func(item *models.Item) { count = item.PageCount })
	return count, err
}

func (m *MemoryStore) GetSource(itemID string) (source models.Source, err error) {
	err = m.with(itemID, func(item *models.Item) { source = item.Source })
	return source, err
}

func (m *MemoryStore) GetURL(itemID string) (url string, err error) {
	err = m.with(itemID, func(item *models.Item) { url = item.URL })
	return url, err
}

func (m *MemoryStore) GetPageURLTable(itemID string) (table []string, err error) {
	err = m.with(itemID, func(item *models.Item) {
		table = append([]string(nil), item.PageURLTable...)
	})
	return table, err
}

func (m *MemoryStore) SetPageURLTable(itemID string, table []string) error {
	return m.with(itemID, func(item *models.Item) {
		item.PageURLTable = append([]string(nil), table...)
		item.UpdatedAt = time.Now()
	})
}

func (m *MemoryStore) GetCursor(itemID string) (cursor int, err error) {
	err = m.with(itemID, func(item *models.Item) { cursor = item.PageCursor })
	return cursor, err
}

func (m *MemoryStore) IncrementCursor(itemID string) error {
	return m.with(itemID, func(item *models.Item) {
		item.PageCursor++
		item.UpdatedAt = time.Now()
	})
}

func (m *MemoryStore) MergeIndexPage(itemID string, expected int, entries []string) (table []string, cursor int, err error) {
	err = m.with(itemID, func(item *models.Item) {
		if item.PageCursor == expected {
			item.PageURLTable = mergeEntries(item.PageURLTable, entries)
			item.PageCursor++
			item.UpdatedAt = time.Now()
		}
		table = append([]string{}, item.PageURLTable...)
		cursor = item.PageCursor
	})
	return table, cursor, err
}
