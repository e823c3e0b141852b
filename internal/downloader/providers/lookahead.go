package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/vrsandeep/mango-pages/internal/models"
)

// IndexFunc fetches index page number cursor of the item at itemURL and
// returns the page entries listed on it, in order.
type IndexFunc func(ctx context.Context, itemURL string, cursor int) ([]string, error)

// Lookahead is the persisted page table shared by sources that list their
// pages over several index pages. The table is only ever extended one index
// page at a time, under the lock, and each step is persisted before it is used.
type Lookahead struct {
	itemID string
	items  models.ItemRepository
	index  IndexFunc

	mu sync.Mutex
}

// NewLookahead creates the table for one item.
func NewLookahead(itemID string, items models.ItemRepository, index IndexFunc) *Lookahead {
	return &Lookahead{itemID: itemID, items: items, index: index}
}

// Entry returns the table entry for page, fetching index pages until the
// table is long enough.
func (l *Lookahead) Entry(ctx context.Context, page int) (string, error) {
	if page < 0 {
		return "", &models.PageRangeError{Page: page}
	}
	table, err := l.items.GetPageURLTable(l.itemID)
	if err != nil {
		return "", err
	}
	if page < len(table) {
		return table[page], nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Another caller may have extended the table while we waited.
	table, err = l.items.GetPageURLTable(l.itemID)
	if err != nil {
		return "", err
	}
	itemURL, err := l.items.GetURL(l.itemID)
	if err != nil {
		return "", err
	}

	for len(table) <= page {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		cursor, err := l.items.GetCursor(l.itemID)
		if err != nil {
			return "", err
		}
		entries, err := l.index(ctx, itemURL, cursor)
		if err != nil {
			return "", fmt.Errorf("index page %d: %w", cursor, err)
		}
		merged, _, err := l.items.MergeIndexPage(l.itemID, cursor, entries)
		if err != nil {
			return "", fmt.Errorf("persist index page %d: %w", cursor, err)
		}
		if len(merged) <= len(table) {
			return "", models.ParseError(itemURL, fmt.Sprintf("index page %d lists no new pages, %d known", cursor, len(merged)))
		}
		table = merged
	}
	return table[page], nil
}
