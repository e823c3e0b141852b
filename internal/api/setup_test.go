package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vrsandeep/mango-pages/internal/api"
	"github.com/vrsandeep/mango-pages/internal/config"
	"github.com/vrsandeep/mango-pages/internal/core"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers/mockadex"
	"github.com/vrsandeep/mango-pages/internal/models"
)

type testEnv struct {
	app    *core.App
	router http.Handler
	hits   *atomic.Int64
}

// setupTestServer wires a full App whose E source is served by a local
// mockadex server with upstreamPages pages.
func setupTestServer(t *testing.T, upstreamPages int) *testEnv {
	t.Helper()

	hits := &atomic.Int64{}
	pages := mockadex.Handler(upstreamPages)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		pages.ServeHTTP(w, r)
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "test.db")
	cfg.Storage.Path = filepath.Join(dir, "pages")
	cfg.Preload.Offsets = []int{}

	registry := providers.NewRegistry()
	registry.Register(mockadex.New(upstream.URL, models.SourceE))

	app, err := core.Build(cfg, &http.Client{Timeout: 5 * time.Second}, registry)
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	t.Cleanup(app.Close)

	return &testEnv{app: app, router: api.NewServer(app).Router(), hits: hits}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// createItem stores an E item through the API and fails the test otherwise.
func (e *testEnv) createItem(t *testing.T, id string, pageCount int) {
	t.Helper()
	rr := e.do(t, "POST", "/api/items", map[string]interface{}{
		"id": id, "title": "Test " + id, "source": "e", "url": "https://e.example/g/1/abc/", "page_count": pageCount,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected item creation to succeed, got %d: %s", rr.Code, rr.Body.String())
	}
}
