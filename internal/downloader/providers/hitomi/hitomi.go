// Package hitomi resolves pages of Hi galleries from the gallery manifest and
// the gg.js subdomain table. The source is disabled unless configured.
package hitomi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/vrsandeep/mango-pages/internal/httpclient"
	"github.com/vrsandeep/mango-pages/internal/models"
	"golang.org/x/sync/singleflight"
)

var galleryIDPattern = regexp.MustCompile(`(\d+)(?:\.html)?(?:[?#].*)?$`)

// GalleryFile is one image of a gallery manifest.
type GalleryFile struct {
	Hash    string `json:"hash"`
	Name    string `json:"name"`
	HasWebp int    `json:"haswebp"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// GalleryInfo is the manifest published as galleries/<id>.js.
type GalleryInfo struct {
	ID    json.RawMessage `json:"id"`
	Title string          `json:"title"`
	Files []GalleryFile   `json:"files"`
}

// HitomiProvider implements the Provider interface for Hi.
type HitomiProvider struct {
	client  *http.Client
	enabled bool
	domain  string
	// ltnBaseURL and imageScheme are fixed in production; tests point them
	// at a local server.
	ltnBaseURL  string
	imageScheme string

	// gg.js is the same for every gallery; resolvers opened together share
	// one download of it.
	ggGroup singleflight.Group
}

// New creates the provider. A disabled provider builds no resolvers.
func New(client *http.Client, enabled bool, domain string) *HitomiProvider {
	return &HitomiProvider{
		client:      client,
		enabled:     enabled,
		domain:      domain,
		ltnBaseURL:  "https://ltn." + domain,
		imageScheme: "https",
	}
}

func (p *HitomiProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:     "hitomi",
		Name:   "Hitomi",
		Source: models.SourceHi,
	}
}

func (p *HitomiProvider) NewResolver(itemID string, items models.ItemRepository) (models.Resolver, error) {
	if !p.enabled {
		return nil, fmt.Errorf("hitomi is disabled: %w", models.ErrUnsupportedSource)
	}
	return &resolver{provider: p, itemID: itemID, items: items}, nil
}

func (p *HitomiProvider) fetch(ctx context.Context, url string) ([]byte, error) {
	header := http.Header{}
	header.Set("Referer", "https://"+p.domain+"/")
	resp, err := httpclient.Get(ctx, p.client, url, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpclient.Classify(err)
	}
	return body, nil
}

// FetchGallery downloads and decodes the manifest of a gallery.
func (p *HitomiProvider) FetchGallery(ctx context.Context, galleryID string) (*GalleryInfo, error) {
	url := fmt.Sprintf("%s/galleries/%s.js", p.ltnBaseURL, galleryID)
	body, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(string(body))
	if i := strings.Index(raw, "="); i >= 0 && strings.HasPrefix(raw, "var ") {
		raw = strings.TrimSpace(raw[i+1:])
	}
	raw = strings.TrimSuffix(raw, ";")

	var info GalleryInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, &models.ResolutionError{Kind: models.ResolutionParse, URL: url, Reason: "invalid gallery manifest", Err: err}
	}
	return &info, nil
}

// FetchMapper downloads and evaluates gg.js.
func (p *HitomiProvider) FetchMapper(ctx context.Context) (*ScriptMapper, error) {
	url := p.ltnBaseURL + "/gg.js"
	body, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	mapper, err := NewScriptMapper(string(body))
	if err != nil {
		return nil, &models.ResolutionError{Kind: models.ResolutionParse, URL: url, Reason: "invalid gg.js", Err: err}
	}
	return mapper, nil
}

// SharedMapper is FetchMapper, joined with a fetch another resolver already
// has running.
func (p *HitomiProvider) SharedMapper(ctx context.Context) (Mapper, error) {
	v, err, _ := p.ggGroup.Do("gg.js", func() (interface{}, error) {
		return p.FetchMapper(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ScriptMapper), nil
}

// ImageURL builds the webp URL of a file.
func (p *HitomiProvider) ImageURL(file GalleryFile, mapper Mapper) (string, error) {
	hash := strings.ToLower(file.Hash)
	sub, err := Subdomain(hash, mapper)
	if err != nil {
		return "", err
	}
	g, err := ImageNumber(hash)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s.%s/webp/%s%d/%s.webp", p.imageScheme, sub, p.domain, mapper.B(), g, hash), nil
}

type resolver struct {
	provider *HitomiProvider
	itemID   string
	items    models.ItemRepository

	mu      sync.Mutex
	gallery *GalleryInfo
	mapper  Mapper
}

func (r *resolver) load(ctx context.Context) (*GalleryInfo, Mapper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gallery != nil && r.mapper != nil {
		return r.gallery, r.mapper, nil
	}

	itemURL, err := r.items.GetURL(r.itemID)
	if err != nil {
		return nil, nil, err
	}
	m := galleryIDPattern.FindStringSubmatch(itemURL)
	if m == nil {
		return nil, nil, models.ParseError(itemURL, "no gallery id in url")
	}

	if r.gallery == nil {
		gallery, err := r.provider.FetchGallery(ctx, m[1])
		if err != nil {
			return nil, nil, err
		}
		r.gallery = gallery
	}
	if r.mapper == nil {
		mapper, err := r.provider.SharedMapper(ctx)
		if err != nil {
			return nil, nil, err
		}
		r.mapper = mapper
	}
	return r.gallery, r.mapper, nil
}

func (r *resolver) Resolve(ctx context.Context, page int) (models.PageRequest, error) {
	gallery, mapper, err := r.load(ctx)
	if err != nil {
		return models.PageRequest{}, err
	}
	if page < 0 || page >= len(gallery.Files) {
		return models.PageRequest{}, models.ParseError("", fmt.Sprintf("gallery has %d files, page %d requested", len(gallery.Files), page))
	}

	url, err := r.provider.ImageURL(gallery.Files[page], mapper)
	if err != nil {
		return models.PageRequest{}, models.ParseError("", err.Error())
	}
	header := http.Header{}
	header.Set("Referer", "https://"+r.provider.domain+"/")
	return models.PageRequest{URL: url, Header: header}, nil
}
