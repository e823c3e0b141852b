// A mock provider for development and testing purposes. It resolves every
// page to a local placeholder server instead of a real site.
package mockadex

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/vrsandeep/mango-pages/internal/models"
)

type MockadexProvider struct {
	baseURL string
	source  models.Source
}

// New creates a provider standing in for source, resolving pages under baseURL.
func New(baseURL string, source models.Source) *MockadexProvider {
	return &MockadexProvider{baseURL: strings.TrimRight(baseURL, "/"), source: source}
}

func (p *MockadexProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:     "mockadex",
		Name:   "Mockadex",
		Source: p.source,
	}
}

func (p *MockadexProvider) NewResolver(itemID string, items models.ItemRepository) (models.Resolver, error) {
	return &resolver{baseURL: p.baseURL, itemID: itemID}, nil
}

type resolver struct {
	baseURL string
	itemID  string
}

func (r *resolver) Resolve(ctx context.Context, page int) (models.PageRequest, error) {
	header := http.Header{}
	header.Set("Referer", fmt.Sprintf("%s/items/%s", r.baseURL, r.itemID))
	return models.PageRequest{
		URL:    fmt.Sprintf("%s/pages/%s/%d", r.baseURL, r.itemID, page),
		Header: header,
	}, nil
}

// Handler serves placeholder PNG pages at /pages/{item}/{page}. Pages past
// the configured count answer 404.
func Handler(pageCount int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "pages" {
			http.NotFound(w, r)
			return
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil || page < 0 || page >= pageCount {
			http.NotFound(w, r)
			return
		}
		data, err := Placeholder(page, 80, 120)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	})
}

// Placeholder renders a solid w×h PNG whose shade depends on page.
func Placeholder(page, w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shade := uint8(40 + (page*37)%200)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 255 - shade, B: 128, A: 255})
		}
	}
	// Mark the top-left corner so orientation changes are observable.
	for y := 0; y < h/4; y++ {
		for x := 0; x < w/4; x++ {
			img.Set(x, y, color.Black)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
