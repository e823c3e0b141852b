// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vrsandeep/mango-pages/internal/models"
)

// ErrItemNotFound is returned when no item has the requested id.
var ErrItemNotFound = errors.New("item not found")

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

var _ models.ItemRepository = (*Store)(nil)

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const itemColumns = "id, title, source, url, page_count, page_cursor, page_url_table, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var table string
	err := row.Scan(&item.ID, &item.Title, &item.Source, &item.URL, &item.PageCount,
		&item.PageCursor, &table, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(table), &item.PageURLTable); err != nil {
		return nil, fmt.Errorf("corrupt page url table for item %s: %w", item.ID, err)
	}
	return &item, nil
}

// CreateItem inserts a new item. The lookahead table always starts empty.
func (s *Store) CreateItem(item *models.Item) error {
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO items (id, title, source, url, page_count, page_cursor, page_url_table, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, '[]', ?, ?)`,
		item.ID, item.Title, item.Source, item.URL, item.PageCount, now, now)
	if err != nil {
		return fmt.Errorf("failed to create item %s: %w", item.ID, err)
	}
	item.PageCursor = 0
	item.PageURLTable = nil
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// GetItem retrieves a single item by its id.
func (s *Store) GetItem(itemID string) (*models.Item, error) {
	row := s.db.QueryRow("SELECT "+itemColumns+" FROM items WHERE id = ?", itemID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	return item, err
}

// ListItems returns every item ordered by creation time.
func (s *Store) ListItems() ([]*models.Item, error) {
	rows, err := s.db.Query("SELECT " + itemColumns + " FROM items ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdatePageCount records a new page count; some sources grow over time.
func (s *Store) UpdatePageCount(itemID string, pageCount int) error {
	return s.exec("UPDATE items SET page_count = ?, updated_at = ? WHERE id = ?", itemID, pageCount, time.Now(), itemID)
}

// DeleteItem removes the item row. Its page folder is owned by the caller.
func (s *Store) DeleteItem(itemID string) error {
	return s.exec("DELETE FROM items WHERE id = ?", itemID, itemID)
}

func (s *Store) GetPageCount(itemID string) (int, error) {
	var count int
	err := s.queryValue("SELECT page_count FROM items WHERE id = ?", itemID, &count)
	return count, err
}

func (s *Store) GetSource(itemID string) (models.Source, error) {
	var source models.Source
	err := s.queryValue("SELECT source FROM items WHERE id = ?", itemID, &source)
	return source, err
}

func (s *Store) GetURL(itemID string) (string, error) {
	var url string
	err := s.queryValue("SELECT url FROM items WHERE id = ?", itemID, &url)
	return url, err
}

func (s *Store) GetPageURLTable(itemID string) ([]string, error) {
	var raw string
	if err := s.queryValue("SELECT page_url_table FROM items WHERE id = ?", itemID, &raw); err != nil {
		return nil, err
	}
	var table []string
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("corrupt page url table for item %s: %w", itemID, err)
	}
	return table, nil
}

func (s *Store) SetPageURLTable(itemID string, table []string) error {
	raw, err := json.Marshal(nonNil(table))
	if err != nil {
		return err
	}
	return s.exec("UPDATE items SET page_url_table = ?, updated_at = ? WHERE id = ?", itemID, string(raw), time.Now(), itemID)
}

func (s *Store) GetCursor(itemID string) (int, error) {
	var cursor int
	err := s.queryValue("SELECT page_cursor FROM items WHERE id = ?", itemID, &cursor)
	return cursor, err
}

func (s *Store) IncrementCursor(itemID string) error {
	return s.exec("UPDATE items SET page_cursor = page_cursor + 1, updated_at = ? WHERE id = ?", itemID, time.Now(), itemID)
}

// MergeIndexPage appends unseen entries to the lookahead table and advances
// the cursor in a single transaction. If the persisted cursor no longer equals
// cursor the step was already taken by someone else and nothing is written.
func (s *Store) MergeIndexPage(itemID string, cursor int, entries []string) ([]string, int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var raw string
	var current int
	err = tx.QueryRow("SELECT page_url_table, page_cursor FROM items WHERE id = ?", itemID).Scan(&raw, &current)
	if err == sql.ErrNoRows {
		return nil, 0, ErrItemNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	var table []string
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, 0, fmt.Errorf("corrupt page url table for item %s: %w", itemID, err)
	}
	if current != cursor {
		return nonNil(table), current, nil
	}
	table = mergeEntries(table, entries)
	cursor++

	encoded, err := json.Marshal(nonNil(table))
	if err != nil {
		return nil, 0, err
	}
	_, err = tx.Exec("UPDATE items SET page_url_table = ?, page_cursor = ?, updated_at = ? WHERE id = ?",
		string(encoded), cursor, time.Now(), itemID)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return table, cursor, nil
}

func (s *Store) queryValue(query, itemID string, dest any) error {
	err := s.db.QueryRow(query, itemID).Scan(dest)
	if err == sql.ErrNoRows {
		return ErrItemNotFound
	}
	return err
}

func (s *Store) exec(query, itemID string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// mergeEntries appends the entries not already present, keeping order.
func mergeEntries(table, entries []string) []string {
	seen := make(map[string]struct{}, len(table)+len(entries))
	for _, e := range table {
		seen[e] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		table = append(table, e)
	}
	return table
}

func nonNil(table []string) []string {
	if table == nil {
		return []string{}
	}
	return table
}
