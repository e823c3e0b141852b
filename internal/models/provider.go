package models

import (
	"context"
	"net/http"
)

// ProviderInfo contains static information about a provider.
type ProviderInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source Source `json:"source"`
}

// PageRequest is everything needed to download one page image.
type PageRequest struct {
	URL    string
	Header http.Header
}

// ProgressFunc receives the transfer progress of a page. contentLength is -1
// when the server did not announce a length.
type ProgressFunc func(contentLength, downloaded int64)

// ItemRepository is the slice of the metadata store the fetch layer needs.
type ItemRepository interface {
	GetPageCount(itemID string) (int, error)
	GetSource(itemID string) (Source, error)
	GetURL(itemID string) (string, error)
	GetPageURLTable(itemID string) ([]string, error)
	SetPageURLTable(itemID string, table []string) error
	GetCursor(itemID string) (int, error)
	IncrementCursor(itemID string) error
	// MergeIndexPage appends the entries not yet in the table and advances
	// the cursor by one, atomically, provided the persisted cursor still equals
	// cursor. It returns the resulting table and cursor either way.
	MergeIndexPage(itemID string, cursor int, entries []string) ([]string, int, error)
}

// Resolver turns a page index of one item into the request for its image.
// Implementations must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, page int) (PageRequest, error)
}

// Provider builds resolvers for the items of one source.
type Provider interface {
	GetInfo() ProviderInfo
	NewResolver(itemID string, items ItemRepository) (Resolver, error)
}
