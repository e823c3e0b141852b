package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Item IDs double as folder names under the page store root.
var itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateItemID checks that an ID is safe to use as a single path component.
func ValidateItemID(id string) error {
	if id == "" {
		return fmt.Errorf("item id cannot be empty")
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("item id contains invalid directory traversal")
	}
	if !itemIDPattern.MatchString(id) {
		return fmt.Errorf("item id %q may only contain letters, digits, '-' and '_'", id)
	}
	return nil
}

// NewItemID returns a random 16 character hex ID.
func NewItemID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// SanitizeItemID turns an arbitrary string (a gallery number, a title) into a
// valid item ID, or returns "" if nothing usable remains.
func SanitizeItemID(raw string) string {
	re := regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	safe := re.ReplaceAllString(strings.TrimSpace(raw), "-")

	re = regexp.MustCompile(`-+`)
	safe = re.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")

	if len(safe) > 64 {
		safe = strings.TrimRight(safe[:64], "-")
	}
	return safe
}
