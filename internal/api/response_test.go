package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vrsandeep/mango-pages/internal/fetcher"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/store"
)

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code int
	}{
		{"Out of range", &models.PageRangeError{Page: 9, PageCount: 3}, http.StatusBadRequest},
		{"Unknown item", fmt.Errorf("open x: %w", store.ErrItemNotFound), http.StatusNotFound},
		{"Scratch id", fetcher.ErrScratchID, http.StatusConflict},
		{"Unsupported", fmt.Errorf("source ru: %w", models.ErrUnsupportedSource), http.StatusNotImplemented},
		{"Offline", fmt.Errorf("page 1: %w", models.ErrNetworkUnavailable), http.StatusServiceUnavailable},
		{"Timeout", fmt.Errorf("%w: read tcp", models.ErrTimeout), http.StatusGatewayTimeout},
		{"Deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"Upstream 404", models.StatusError(404, "https://x/1"), http.StatusNotFound},
		{"Upstream 403", models.StatusError(403, "https://x/1"), http.StatusBadGateway},
		{"Parse", models.ParseError("https://x/1", "no image"), http.StatusBadGateway},
		{"Page not cached", &models.IOError{Op: "read", Path: "/p/1/0", Err: fs.ErrNotExist}, http.StatusNotFound},
		{"Disk", &models.IOError{Op: "write", Path: "/p/1/0", Err: errors.New("no space left on device")}, http.StatusInternalServerError},
		{"Other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.code {
				t.Errorf("Expected status %d, got %d", tc.code, got)
			}
		})
	}
}

func TestRespondWithError(t *testing.T) {
	rr := httptest.NewRecorder()
	respondWithFetchError(rr, &models.PageRangeError{Page: 5, PageCount: 2})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}
	expected := `{"error":"page 5 out of range [0, 2)"}`
	if rr.Body.String() != expected {
		t.Errorf("Expected body %s, got %s", expected, rr.Body.String())
	}
}
