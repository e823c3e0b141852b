// This file defines the core data structures (models) for the page cache.
// An Item is one downloadable work; its pages are fetched lazily.

package models

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the remote site an item is scraped from. The numeric
// value is persisted, so new sources must only ever be appended.
type Source int

const (
	SourceE Source = iota
	SourceWn
	SourceHi
	SourceRu
)

var sourceNames = map[Source]string{
	SourceE:  "e",
	SourceWn: "wn",
	SourceHi: "hi",
	SourceRu: "ru",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// ParseSource converts a short source name ("e", "wn", "hi", "ru") into a Source.
func ParseSource(name string) (Source, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range sourceNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown source %q", name)
}

// MarshalText lets sources appear by name in JSON and YAML.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(text []byte) error {
	parsed, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Item represents a single downloadable work.
type Item struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Source       Source    `json:"source"`
	URL          string    `json:"url"`
	PageCount    int       `json:"page_count"`
	PageCursor   int       `json:"page_cursor"`
	PageURLTable []string  `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidPage reports whether page addresses an existing page of the item.
func (i *Item) ValidPage(page int) bool {
	return page >= 0 && page < i.PageCount
}
