package downloader_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-pages/internal/downloader"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/pagestore"
)

const imageBody = "0123456789abcdefghijklmnopqrstuvwxyz"

type offline struct{}

func (offline) Online(context.Context) bool { return false }

// imageServer serves imageBody on /img/{n}, recording hits. When gate is
// non-nil every request blocks until it is closed.
type imageServer struct {
	*httptest.Server
	hits atomic.Int64
	gate chan struct{}
}

func newImageServer(t *testing.T, gate chan struct{}) *imageServer {
	s := &imageServer{gate: gate}
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(imageBody)))
		fmt.Fprint(w, imageBody)
	})
	mux.HandleFunc("/chunked/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		flusher := w.(http.Flusher)
		for i := 0; i < len(imageBody); i += 12 {
			fmt.Fprint(w, imageBody[i:min(i+12, len(imageBody))])
			flusher.Flush()
		}
	})
	mux.HandleFunc("/missing/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/truncated/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Length", "1000")
		fmt.Fprint(w, imageBody)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		if s.gate != nil {
			select {
			case <-s.gate:
			default:
				close(s.gate)
			}
		}
		s.Close()
	})
	return s
}

func resolver(base, prefix string, calls *atomic.Int64) downloader.ResolveFunc {
	return func(ctx context.Context, page int) (models.PageRequest, error) {
		if calls != nil {
			calls.Add(1)
		}
		return models.PageRequest{URL: fmt.Sprintf("%s/%s/%d", base, prefix, page)}, nil
	}
}

func newCoordinator(t *testing.T, opts downloader.Options) (*downloader.Coordinator, *pagestore.Store) {
	t.Helper()
	if opts.Pages == nil {
		opts.Pages = pagestore.New(t.TempDir())
	}
	if opts.ItemID == "" {
		opts.ItemID = "item1"
	}
	c := downloader.New(opts)
	t.Cleanup(c.Close)
	return c, opts.Pages
}

func TestFetchDownloadsAndCaches(t *testing.T) {
	server := newImageServer(t, nil)
	c, pages := newCoordinator(t, downloader.Options{})
	var calls atomic.Int64

	path, err := c.Fetch(context.Background(), 0, resolver(server.URL, "img", &calls), nil)
	require.NoError(t, err)
	assert.Equal(t, pages.Path("item1", 0), path)

	data, err := pages.ReadFile("item1", 0)
	require.NoError(t, err)
	assert.Equal(t, imageBody, string(data))

	again, err := c.Fetch(context.Background(), 0, resolver(server.URL, "img", &calls), nil)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int64(1), server.hits.Load(), "cache hit must not touch the network")
	assert.Equal(t, int64(1), calls.Load(), "cache hit must not resolve")
	assert.Equal(t, int64(1), c.Transfers())
}

func TestConcurrentFetchSingleTransfer(t *testing.T) {
	gate := make(chan struct{})
	server := newImageServer(t, gate)
	c, _ := newCoordinator(t, downloader.Options{})
	var calls atomic.Int64

	const callers = 8
	var wg sync.WaitGroup
	paths := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = c.Fetch(context.Background(), 3, resolver(server.URL, "img", &calls), nil)
		}(i)
	}

	require.Eventually(t, func() bool { return server.hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.InFlight(3))
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	assert.Equal(t, int64(1), server.hits.Load())
	assert.Equal(t, int64(1), calls.Load())
	assert.False(t, c.InFlight(3))
}

func TestDistinctPagesDownloadIndependently(t *testing.T) {
	server := newImageServer(t, nil)
	c, pages := newCoordinator(t, downloader.Options{})

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), p, resolver(server.URL, "img", nil), nil)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Equal(t, int64(4), server.hits.Load())
	got, err := pages.Pages("item1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestProgressCallbacks(t *testing.T) {
	t.Run("Known length", func(t *testing.T) {
		server := newImageServer(t, nil)
		c, _ := newCoordinator(t, downloader.Options{})

		var totals, done []int64
		_, err := c.Fetch(context.Background(), 0, resolver(server.URL, "img", nil), func(total, n int64) {
			totals = append(totals, total)
			done = append(done, n)
		})
		require.NoError(t, err)
		require.NotEmpty(t, done)
		for i := range done {
			assert.Equal(t, int64(len(imageBody)), totals[i])
			if i > 0 && done[i] < done[i-1] {
				t.Errorf("Progress went backwards: %v", done)
			}
		}
		assert.Equal(t, int64(len(imageBody)), done[len(done)-1])
	})

	t.Run("Unknown length", func(t *testing.T) {
		server := newImageServer(t, nil)
		c, _ := newCoordinator(t, downloader.Options{})

		var last, lastTotal int64
		_, err := c.Fetch(context.Background(), 0, resolver(server.URL, "chunked", nil), func(total, n int64) {
			lastTotal, last = total, n
		})
		require.NoError(t, err)
		assert.Equal(t, int64(-1), lastTotal)
		assert.Equal(t, int64(len(imageBody)), last)
	})

	t.Run("Every waiter is notified", func(t *testing.T) {
		gate := make(chan struct{})
		server := newImageServer(t, gate)
		c, _ := newCoordinator(t, downloader.Options{})

		var first, second atomic.Int64
		var wg sync.WaitGroup
		for _, counter := range []*atomic.Int64{&first, &second} {
			wg.Add(1)
			go func(counter *atomic.Int64) {
				defer wg.Done()
				_, err := c.Fetch(context.Background(), 1, resolver(server.URL, "img", nil), func(total, n int64) {
					counter.Add(1)
				})
				assert.NoError(t, err)
			}(counter)
		}
		require.Eventually(t, func() bool { return server.hits.Load() == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		close(gate)
		wg.Wait()

		assert.Positive(t, first.Load())
		assert.Positive(t, second.Load())
	})
}

func TestFetchFailures(t *testing.T) {
	t.Run("Not found vacates the in-flight marker", func(t *testing.T) {
		server := newImageServer(t, nil)
		c, pages := newCoordinator(t, downloader.Options{})

		_, err := c.Fetch(context.Background(), 2, resolver(server.URL, "missing", nil), nil)
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		assert.False(t, c.InFlight(2))
		assert.False(t, pages.Exists("item1", 2))

		// The next request starts a fresh transfer.
		_, err = c.Fetch(context.Background(), 2, resolver(server.URL, "img", nil), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), server.hits.Load())
	})

	t.Run("Timeout", func(t *testing.T) {
		server := newImageServer(t, nil)
		c, pages := newCoordinator(t, downloader.Options{
			Client: &http.Client{Timeout: 100 * time.Millisecond},
		})

		_, err := c.Fetch(context.Background(), 0, resolver(server.URL, "slow", nil), nil)
		if !errors.Is(err, models.ErrTimeout) {
			t.Fatalf("Expected ErrTimeout, got %v", err)
		}
		assert.True(t, models.Recoverable(err))
		assert.False(t, pages.Exists("item1", 0))
	})

	t.Run("Network unavailable", func(t *testing.T) {
		server := newImageServer(t, nil)
		c, _ := newCoordinator(t, downloader.Options{Checker: offline{}})
		var calls atomic.Int64

		_, err := c.Fetch(context.Background(), 0, resolver(server.URL, "img", &calls), nil)
		if !errors.Is(err, models.ErrNetworkUnavailable) {
			t.Fatalf("Expected ErrNetworkUnavailable, got %v", err)
		}
		assert.Zero(t, server.hits.Load())
		assert.Zero(t, calls.Load())
	})

	t.Run("Resolution failure", func(t *testing.T) {
		c, _ := newCoordinator(t, downloader.Options{})
		boom := models.ParseError("https://example.com/g/1", "no image")

		_, err := c.Fetch(context.Background(), 0, func(context.Context, int) (models.PageRequest, error) {
			return models.PageRequest{}, boom
		}, nil)
		if !errors.Is(err, models.ErrParse) {
			t.Fatalf("Expected ErrParse, got %v", err)
		}
		assert.Zero(t, c.Transfers())
	})

	t.Run("Truncated body leaves no file", func(t *testing.T) {
		server := newImageServer(t, nil)
		c, pages := newCoordinator(t, downloader.Options{})

		_, err := c.Fetch(context.Background(), 5, resolver(server.URL, "truncated", nil), nil)
		require.Error(t, err)
		assert.False(t, pages.Exists("item1", 5))
		count, err := pages.Count("item1")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestWaiterCancellation(t *testing.T) {
	gate := make(chan struct{})
	server := newImageServer(t, gate)
	c, pages := newCoordinator(t, downloader.Options{})

	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), 0, resolver(server.URL, "img", nil), nil)
		leaderDone <- err
	}()
	require.Eventually(t, func() bool { return server.hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, 0, resolver(server.URL, "img", nil), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected the waiter to give up with its own deadline, got %v", err)
	}

	close(gate)
	require.NoError(t, <-leaderDone)
	assert.True(t, pages.Exists("item1", 0))
	assert.Equal(t, int64(1), server.hits.Load())
}

func TestClose(t *testing.T) {
	gate := make(chan struct{})
	server := newImageServer(t, gate)
	c := downloader.New(downloader.Options{ItemID: "item1", Pages: pagestore.New(t.TempDir())})

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), 0, resolver(server.URL, "img", nil), nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight(0) }, time.Second, 5*time.Millisecond)

	c.Close()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the running transfer to be cancelled, got %v", err)
	}

	_, err := c.Fetch(context.Background(), 1, resolver(server.URL, "img", nil), nil)
	assert.ErrorIs(t, err, downloader.ErrClosed)
}

func TestObserver(t *testing.T) {
	server := newImageServer(t, nil)
	var mu sync.Mutex
	var updates []models.ProgressUpdate
	c, _ := newCoordinator(t, downloader.Options{
		ItemID: "obs",
		Observer: func(u models.ProgressUpdate) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		},
	})

	_, err := c.FetchURL(context.Background(), 4, models.PageRequest{URL: server.URL + "/img/4"}, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, "completed", last.Status)
	assert.True(t, last.Done)
	assert.Equal(t, "obs", last.ItemID)
	assert.Equal(t, 4, last.Page)
	for _, u := range updates[:len(updates)-1] {
		assert.Equal(t, "in_progress", u.Status)
	}
}

func TestAwait(t *testing.T) {
	gate := make(chan struct{})
	server := newImageServer(t, gate)
	c, pages := newCoordinator(t, downloader.Options{})

	assert.NoError(t, c.Await(context.Background(), 0), "nothing to wait for")

	go c.Fetch(context.Background(), 0, resolver(server.URL, "img", nil), nil)
	require.Eventually(t, func() bool { return server.hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Await(ctx, 0), context.DeadlineExceeded)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	require.NoError(t, c.Await(context.Background(), 0))
	assert.True(t, pages.Exists("item1", 0), "file is committed before Await returns")
	assert.False(t, c.InFlight(0))
}

func TestFetchIsInFlightOnceJoined(t *testing.T) {
	gate := make(chan struct{})
	server := newImageServer(t, gate)
	c, pages := newCoordinator(t, downloader.Options{})

	// The caller gives up early, but the transfer it started must stay
	// visible to Await until the file is committed.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, 0, resolver(server.URL, "img", nil), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, c.InFlight(0), "page is in flight after its caller left")

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	require.NoError(t, c.Await(context.Background(), 0))
	assert.True(t, pages.Exists("item1", 0), "Await waited for the transfer")
	assert.False(t, c.InFlight(0))
}

func TestFetchWithDoneContextStartsNothing(t *testing.T) {
	server := newImageServer(t, nil)
	c, _ := newCoordinator(t, downloader.Options{})
	var calls atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, 0, resolver(server.URL, "img", &calls), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.InFlight(0))
	assert.Equal(t, int64(0), calls.Load())
	assert.Equal(t, int64(0), server.hits.Load())
}

func TestAwaitDoesNotAnswerFetch(t *testing.T) {
	server := newImageServer(t, nil)
	c, _ := newCoordinator(t, downloader.Options{})
	resolve := resolver(server.URL, "missing", nil)

	for i := 0; i < 100; i++ {
		var wg sync.WaitGroup
		results := make(chan error, 3)
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				path, err := c.Fetch(context.Background(), 0, resolve, nil)
				if err == nil {
					results <- fmt.Errorf("Expected ErrNotFound, got path %q and no error", path)
					return
				}
				if !errors.Is(err, models.ErrNotFound) {
					results <- fmt.Errorf("Expected ErrNotFound, got %v", err)
				}
			}()
		}
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Await(context.Background(), 0)
			}()
		}
		wg.Wait()
		close(results)
		for err := range results {
			t.Fatal(err)
		}
	}
}
