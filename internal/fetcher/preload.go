package fetcher

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/vrsandeep/mango-pages/internal/downloader"
	"github.com/vrsandeep/mango-pages/internal/models"
)

// PreloadOptions configures the speculative pre-loader.
type PreloadOptions struct {
	// Offsets relative to the page being viewed, e.g. [1, 2, -1].
	Offsets []int
	Workers int
	Queue   int
}

// Preloader downloads pages next to the one being viewed on its own workers,
// so it never delays the viewer's own request.
type Preloader struct {
	fetcher *Fetcher
	offsets []int
	jobs    chan int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newPreloader(f *Fetcher, opts PreloadOptions) *Preloader {
	if opts.Offsets == nil {
		opts.Offsets = []int{1, 2, -1}
	}
	if opts.Workers < 1 {
		opts.Workers = 2
	}
	if opts.Queue < 1 {
		opts.Queue = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Preloader{
		fetcher: f,
		offsets: opts.Offsets,
		jobs:    make(chan int, opts.Queue),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Around enqueues the configured neighbours of page that are in range and
// not yet cached. Pages that do not fit in the queue are dropped.
func (p *Preloader) Around(page int) {
	if p.ctx.Err() != nil {
		return
	}
	count, err := p.fetcher.items.GetPageCount(p.fetcher.itemID)
	if err != nil {
		return
	}
	for _, offset := range p.offsets {
		target := page + offset
		if target < 0 || target >= count {
			continue
		}
		if p.fetcher.pages.Exists(p.fetcher.itemID, target) || p.fetcher.InFlight(target) {
			continue
		}
		select {
		case p.jobs <- target:
		default:
		}
	}
}

func (p *Preloader) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case page := <-p.jobs:
			_, err := p.fetcher.SavePicture(p.ctx, page, nil)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, downloader.ErrClosed) {
				if models.Recoverable(err) {
					log.Printf("Preload of page %d of %s failed: %v", page, p.fetcher.itemID, err)
				} else {
					log.Printf("Preload of page %d of %s aborted: %v", page, p.fetcher.itemID, err)
				}
			}
		}
	}
}

func (p *Preloader) stop() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}
