// Package wnacg resolves pages of Wn albums. An album is listed over index
// pages photos-index-page-N-aid-ID.html (N from 1), each linking viewer pages
// photos-view-id-M.html that hold one image.
package wnacg

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers"
	"github.com/vrsandeep/mango-pages/internal/httpclient"
	"github.com/vrsandeep/mango-pages/internal/models"
)

var (
	albumIDPattern  = regexp.MustCompile(`aid-(\d+)`)
	viewLinkPattern = regexp.MustCompile(`^/photos-view-id-\d+\.html$`)
)

// WnacgProvider implements the Provider interface for Wn.
type WnacgProvider struct {
	client  *http.Client
	baseURL string
	gate    *SlotGate
}

// New creates the provider. Every HTTP request a resolver makes waits for a
// slot of gate; the image downloads themselves are not gated.
func New(client *http.Client, baseURL string, slots int, cooldown time.Duration) *WnacgProvider {
	return &WnacgProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		gate:    NewSlotGate(slots, cooldown),
	}
}

func (p *WnacgProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:     "wnacg",
		Name:   "Wnacg",
		Source: models.SourceWn,
	}
}

func (p *WnacgProvider) NewResolver(itemID string, items models.ItemRepository) (models.Resolver, error) {
	return &resolver{
		provider:  p,
		lookahead: providers.NewLookahead(itemID, items, p.indexPage),
	}, nil
}

func (p *WnacgProvider) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := p.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	resp, err := httpclient.Get(ctx, p.client, pageURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, httpclient.Classify(err)
	}
	return doc, nil
}

// indexPage returns the absolute viewer links on index page cursor+1.
func (p *WnacgProvider) indexPage(ctx context.Context, itemURL string, cursor int) ([]string, error) {
	m := albumIDPattern.FindStringSubmatch(itemURL)
	if m == nil {
		return nil, models.ParseError(itemURL, "no album id in url")
	}
	indexURL := fmt.Sprintf("%s/photos-index-page-%d-aid-%s.html", p.baseURL, cursor+1, m[1])

	doc, err := p.document(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !viewLinkPattern.MatchString(href) || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, p.baseURL+href)
	})
	return links, nil
}

type resolver struct {
	provider  *WnacgProvider
	lookahead *providers.Lookahead
}

func (r *resolver) Resolve(ctx context.Context, page int) (models.PageRequest, error) {
	viewURL, err := r.lookahead.Entry(ctx, page)
	if err != nil {
		return models.PageRequest{}, err
	}

	doc, err := r.provider.document(ctx, viewURL)
	if err != nil {
		return models.PageRequest{}, err
	}
	src, ok := doc.Find("img#picarea").Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return models.PageRequest{}, models.ParseError(viewURL, fmt.Sprintf("no image on viewer page for page %d", page))
	}

	imageURL, err := providers.AbsoluteURL(viewURL, src)
	if err != nil {
		return models.PageRequest{}, models.ParseError(viewURL, "invalid image url "+src)
	}
	return models.PageRequest{URL: imageURL}, nil
}
