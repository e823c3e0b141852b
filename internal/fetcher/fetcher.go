// Package fetcher is the page API the viewer talks to. A Fetcher is bound to
// one open item and combines its resolver, the download coordinator and the
// page store.
package fetcher

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/vrsandeep/mango-pages/internal/downloader"
	"github.com/vrsandeep/mango-pages/internal/httpclient"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/pagestore"
)

// Options configures a Fetcher.
type Options struct {
	ItemID   string
	Items    models.ItemRepository
	Pages    *pagestore.Store
	Resolver models.Resolver
	Client   *http.Client
	Checker  httpclient.Checker
	Observer downloader.Observer
	// Scratch fetchers serve an unsaved preview; Close wipes their folder.
	Scratch bool
	Preload PreloadOptions
}

// Fetcher serves the pages of one item.
type Fetcher struct {
	itemID   string
	items    models.ItemRepository
	pages    *pagestore.Store
	resolver models.Resolver
	coord    *downloader.Coordinator
	preload  *Preloader
	scratch  bool
}

// New creates a Fetcher and starts its pre-loader.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		itemID:   opts.ItemID,
		items:    opts.Items,
		pages:    opts.Pages,
		resolver: opts.Resolver,
		scratch:  opts.Scratch,
		coord: downloader.New(downloader.Options{
			ItemID:   opts.ItemID,
			Pages:    opts.Pages,
			Client:   opts.Client,
			Checker:  opts.Checker,
			Observer: opts.Observer,
		}),
	}
	f.preload = newPreloader(f, opts.Preload)
	return f
}

// ItemID returns the item this fetcher serves.
func (f *Fetcher) ItemID() string {
	return f.itemID
}

func (f *Fetcher) checkRange(page int) error {
	count, err := f.items.GetPageCount(f.itemID)
	if err != nil {
		return fmt.Errorf("page count of %s: %w", f.itemID, err)
	}
	if page < 0 || page >= count {
		return &models.PageRangeError{Page: page, PageCount: count}
	}
	return nil
}

// GetPictureURL returns the local path of page, downloading it on a miss.
// Recoverable failures (see models.Recoverable) mean "could not load, retry later".
func (f *Fetcher) GetPictureURL(ctx context.Context, page int, onProgress models.ProgressFunc) (string, error) {
	if err := f.checkRange(page); err != nil {
		return "", err
	}
	if f.pages.Exists(f.itemID, page) {
		return f.pages.Path(f.itemID, page), nil
	}
	return f.coord.Fetch(ctx, page, f.resolver.Resolve, onProgress)
}

// SavePicture makes sure page is cached. Earlier failures are not remembered;
// every call may start a new transfer.
func (f *Fetcher) SavePicture(ctx context.Context, page int, onProgress models.ProgressFunc) (string, error) {
	if err := f.checkRange(page); err != nil {
		return "", err
	}
	return f.coord.Fetch(ctx, page, f.resolver.Resolve, onProgress)
}

// ReloadPicture discards the cached copy of page and downloads it again.
func (f *Fetcher) ReloadPicture(ctx context.Context, page int, onProgress models.ProgressFunc) (string, error) {
	if err := f.DeletePicture(ctx, page); err != nil {
		return "", err
	}
	return f.coord.Fetch(ctx, page, f.resolver.Resolve, onProgress)
}

// DeletePicture removes the cached copy of page. A running download of the
// page is allowed to finish first, so its file cannot reappear afterwards.
func (f *Fetcher) DeletePicture(ctx context.Context, page int) error {
	if err := f.checkRange(page); err != nil {
		return err
	}
	if err := f.coord.Await(ctx, page); err != nil {
		return err
	}
	return f.pages.Delete(f.itemID, page)
}

// Preload queues background downloads of the pages around page.
func (f *Fetcher) Preload(page int) {
	f.preload.Around(page)
}

// BookFolder is the directory holding the item's downloaded pages.
func (f *Fetcher) BookFolder() string {
	return f.pages.Folder(f.itemID)
}

// DownloadedPages lists the cached page indices in ascending order.
func (f *Fetcher) DownloadedPages() ([]int, error) {
	return f.pages.Pages(f.itemID)
}

// InFlight reports whether page is being downloaded right now.
func (f *Fetcher) InFlight(page int) bool {
	return f.coord.InFlight(page)
}

// Transfers returns how many image downloads this fetcher has started.
func (f *Fetcher) Transfers() int64 {
	return f.coord.Transfers()
}

// Close stops the pre-loader and running downloads. Scratch fetchers also
// remove every page they downloaded.
func (f *Fetcher) Close() error {
	f.preload.stop()
	f.coord.Close()
	if f.scratch {
		if err := f.pages.ClearAll(f.itemID); err != nil {
			return err
		}
		log.Printf("Cleared scratch pages of %s", f.itemID)
	}
	return nil
}
