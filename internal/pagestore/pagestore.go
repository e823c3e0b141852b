// Package pagestore maps (item, page) pairs to image files on disk. A page is
// cached if and only if its file exists; files only ever appear through a
// completed rename, so a reader never observes a partial image.
package pagestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/vrsandeep/mango-pages/internal/models"
)

// partialPrefix marks in-progress writes. Page names are plain integers, so a
// temp file can never be mistaken for a cached page.
const partialPrefix = ".part-"

// Store is a filesystem-backed page cache rooted at a directory.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates a Store on the real filesystem.
func New(root string) *Store {
	return NewWithFs(afero.NewOsFs(), root)
}

// NewWithFs creates a Store on an arbitrary afero filesystem.
func NewWithFs(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Root returns the directory holding every item folder.
func (s *Store) Root() string {
	return s.root
}

// Folder returns the directory holding an item's pages.
func (s *Store) Folder(itemID string) string {
	return filepath.Join(s.root, itemID)
}

// Path returns where a page is (or would be) cached.
func (s *Store) Path(itemID string, page int) string {
	return filepath.Join(s.Folder(itemID), strconv.Itoa(page))
}

// Exists reports whether the page is cached.
func (s *Store) Exists(itemID string, page int) bool {
	info, err := s.fs.Stat(s.Path(itemID, page))
	return err == nil && !info.IsDir()
}

// Write streams r into the page file and returns its path.
func (s *Store) Write(itemID string, page int, r io.Reader) (string, error) {
	return s.Replace(itemID, page, func(w io.Writer) error {
		_, err := io.Copy(&diskWriter{w: w, path: s.Path(itemID, page)}, r)
		return err
	})
}

// diskWriter tags write failures as IOError so callers can tell a full disk
// apart from a broken source stream.
type diskWriter struct {
	w    io.Writer
	path string
}

func (d *diskWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if err != nil {
		return n, &models.IOError{Op: "write", Path: d.path, Err: err}
	}
	return n, nil
}

// Replace atomically (re)writes a page: fill writes the full content into a
// temp file which is renamed over the final name only if fill succeeds.
func (s *Store) Replace(itemID string, page int, fill func(w io.Writer) error) (string, error) {
	folder := s.Folder(itemID)
	if err := s.fs.MkdirAll(folder, 0755); err != nil {
		return "", &models.IOError{Op: "mkdir", Path: folder, Err: err}
	}

	tmp, err := afero.TempFile(s.fs, folder, partialPrefix+strconv.Itoa(page)+"-")
	if err != nil {
		return "", &models.IOError{Op: "create", Path: folder, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			s.fs.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write page %d of %s: %w", page, itemID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", &models.IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &models.IOError{Op: "close", Path: tmpName, Err: err}
	}

	final := s.Path(itemID, page)
	if err := s.fs.Rename(tmpName, final); err != nil {
		return "", &models.IOError{Op: "rename", Path: final, Err: err}
	}
	committed = true
	return final, nil
}

// Open opens a cached page for reading.
func (s *Store) Open(itemID string, page int) (afero.File, error) {
	return s.fs.Open(s.Path(itemID, page))
}

// ReadFile returns the content of a cached page.
func (s *Store) ReadFile(itemID string, page int) ([]byte, error) {
	return afero.ReadFile(s.fs, s.Path(itemID, page))
}

// Delete removes a cached page. Deleting an absent page is not an error.
func (s *Store) Delete(itemID string, page int) error {
	path := s.Path(itemID, page)
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return &models.IOError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// ClearAll removes every cached page of an item, and the folder itself.
func (s *Store) ClearAll(itemID string) error {
	folder := s.Folder(itemID)
	if err := s.fs.RemoveAll(folder); err != nil {
		return &models.IOError{Op: "clear", Path: folder, Err: err}
	}
	return nil
}

// Pages lists the cached page indices of an item in ascending order.
func (s *Store) Pages(itemID string) ([]int, error) {
	infos, err := afero.ReadDir(s.fs, s.Folder(itemID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.IOError{Op: "list", Path: s.Folder(itemID), Err: err}
	}

	pages := make([]int, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		// Anything not named by a page index (temp files, covers) is skipped.
		n, err := strconv.Atoi(info.Name())
		if err != nil || n < 0 {
			continue
		}
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}

// Folders lists the item ids that have a folder under the root.
func (s *Store) Folders() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.IOError{Op: "list", Path: s.root, Err: err}
	}
	var ids []string
	for _, info := range infos {
		if info.IsDir() {
			ids = append(ids, info.Name())
		}
	}
	return ids, nil
}

// Count returns how many pages of an item are cached.
func (s *Store) Count(itemID string) (int, error) {
	pages, err := s.Pages(itemID)
	return len(pages), err
}

// SweepPartials deletes temp files older than maxAge under every item folder.
// They are leftovers of writes interrupted by a crash.
func (s *Store) SweepPartials(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasPrefix(info.Name(), partialPrefix) {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, &models.IOError{Op: "sweep", Path: s.root, Err: err}
	}
	return removed, nil
}
