package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/vrsandeep/mango-pages/internal/httpclient"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/pagestore"
)

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("download coordinator closed")

// ResolveFunc turns a page index into the request for its image.
type ResolveFunc func(ctx context.Context, page int) (models.PageRequest, error)

// Observer receives a progress update for every transfer of the item,
// whichever caller started it.
type Observer func(update models.ProgressUpdate)

// Options configures a Coordinator. Client and Checker default to
// http.DefaultClient and httpclient.AlwaysOnline.
type Options struct {
	ItemID   string
	Pages    *pagestore.Store
	Client   *http.Client
	Checker  httpclient.Checker
	Observer Observer
}

// flight is one running transfer. path and err are set before done is closed.
type flight struct {
	done chan struct{}
	path string
	err  error
}

// Coordinator runs at most one physical download per page of one item.
// Concurrent callers for the same page share the leader's result and each
// receive its progress callbacks.
type Coordinator struct {
	itemID   string
	pages    *pagestore.Store
	client   *http.Client
	checker  httpclient.Checker
	observer Observer

	mu         sync.Mutex
	closed     bool
	inFlight   map[int]*flight
	listeners  map[int]map[uint64]models.ProgressFunc
	listenerID uint64

	transfers atomic.Int64
	running   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Coordinator for a single item.
func New(opts Options) *Coordinator {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Checker == nil {
		opts.Checker = httpclient.AlwaysOnline{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		itemID:    opts.ItemID,
		pages:     opts.Pages,
		client:    opts.Client,
		checker:   opts.Checker,
		observer:  opts.Observer,
		inFlight:  make(map[int]*flight),
		listeners: make(map[int]map[uint64]models.ProgressFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Fetch returns the local path of page, downloading it if it is not cached.
// If a transfer for the page is already running the call waits for it instead
// of starting another. A caller whose ctx ends stops waiting; the transfer
// itself keeps going for the other callers. A ctx that is already done
// starts nothing.
func (c *Coordinator) Fetch(ctx context.Context, page int, resolve ResolveFunc, onProgress models.ProgressFunc) (string, error) {
	if c.pages.Exists(c.itemID, page) {
		return c.pages.Path(c.itemID, page), nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if onProgress != nil {
		defer c.listen(page, onProgress)()
	}

	f, err := c.join(page, resolve)
	if err != nil {
		return "", err
	}

	select {
	case <-f.done:
		return f.path, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// join returns the running transfer of page, starting one if there is none.
// The page counts as in flight from here until every waiter is released.
func (c *Coordinator) join(page int, resolve ResolveFunc) (*flight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if f, ok := c.inFlight[page]; ok {
		return f, nil
	}
	f := &flight{done: make(chan struct{})}
	c.inFlight[page] = f
	c.running.Add(1)
	go c.transfer(page, resolve, f)
	return f, nil
}

// FetchURL is Fetch for a request that is already resolved.
func (c *Coordinator) FetchURL(ctx context.Context, page int, req models.PageRequest, onProgress models.ProgressFunc) (string, error) {
	return c.Fetch(ctx, page, func(context.Context, int) (models.PageRequest, error) {
		return req, nil
	}, onProgress)
}

// Await blocks until no transfer for page is running. It never starts one.
func (c *Coordinator) Await(ctx context.Context, page int) error {
	c.mu.Lock()
	f, ok := c.inFlight[page]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether a transfer for page is currently running.
func (c *Coordinator) InFlight(page int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[page]
	return ok
}

// Transfers returns how many image downloads this coordinator has started.
func (c *Coordinator) Transfers() int64 {
	return c.transfers.Load()
}

// Close cancels running transfers and waits for them to return. Later
// Fetch calls fail with ErrClosed unless the page is already cached.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.running.Wait()
}

func (c *Coordinator) transfer(page int, resolve ResolveFunc, f *flight) {
	defer c.running.Done()
	defer c.release(page, f)

	// A transfer that finished just before this one was started has already
	// left the file behind.
	if c.pages.Exists(c.itemID, page) {
		f.path = c.pages.Path(c.itemID, page)
		return
	}

	path, err := c.download(page, resolve)
	if err != nil {
		log.Printf("Failed to fetch page %d of item %s: %v", page, c.itemID, err)
		c.notify(page, models.ProgressUpdate{Status: "failed", Message: err.Error(), Done: true})
		f.err = err
		return
	}
	c.notify(page, models.ProgressUpdate{Status: "completed", Progress: 100, Done: true})
	f.path = path
}

func (c *Coordinator) download(page int, resolve ResolveFunc) (string, error) {
	ctx := c.ctx
	if !c.checker.Online(ctx) {
		return "", fmt.Errorf("page %d: %w", page, models.ErrNetworkUnavailable)
	}

	req, err := resolve(ctx, page)
	if err != nil {
		return "", fmt.Errorf("resolve page %d: %w", page, err)
	}

	c.transfers.Add(1)
	resp, err := httpclient.Get(ctx, c.client, req.URL, req.Header)
	if err != nil {
		return "", fmt.Errorf("download page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body := &progressReader{
		r:     resp.Body,
		total: resp.ContentLength,
		report: func(total, done int64) {
			c.progress(page, total, done)
		},
	}
	path, err := c.pages.Write(c.itemID, page, body)
	if err != nil {
		var ioErr *models.IOError
		if errors.As(err, &ioErr) {
			return "", err
		}
		return "", fmt.Errorf("download page %d: %w", page, httpclient.Classify(err))
	}
	return path, nil
}

// release unmarks page, then wakes its waiters. The result is already
// committed, so a caller arriving after this sees the file or starts afresh.
func (c *Coordinator) release(page int, f *flight) {
	c.mu.Lock()
	delete(c.inFlight, page)
	c.mu.Unlock()
	close(f.done)
}

// listen registers a progress callback for page and returns its removal.
func (c *Coordinator) listen(page int, fn models.ProgressFunc) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listenerID++
	id := c.listenerID
	if c.listeners[page] == nil {
		c.listeners[page] = make(map[uint64]models.ProgressFunc)
	}
	c.listeners[page][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[page], id)
		if len(c.listeners[page]) == 0 {
			delete(c.listeners, page)
		}
	}
}

func (c *Coordinator) progress(page int, total, done int64) {
	c.mu.Lock()
	fns := make([]models.ProgressFunc, 0, len(c.listeners[page]))
	for _, fn := range c.listeners[page] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(total, done)
	}

	update := models.ProgressUpdate{Status: "in_progress", ContentLength: total, Downloaded: done}
	if total > 0 {
		update.Progress = float64(done) / float64(total) * 100
	}
	c.notify(page, update)
}

func (c *Coordinator) notify(page int, update models.ProgressUpdate) {
	if c.observer == nil {
		return
	}
	update.JobID = "page-fetch"
	update.ItemID = c.itemID
	update.Page = page
	c.observer(update)
}
