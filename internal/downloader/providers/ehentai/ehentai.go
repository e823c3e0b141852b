// Package ehentai resolves pages of E galleries. A gallery lists its viewer
// pages over several index pages (?p=0, ?p=1, ...); every viewer page holds
// one image.
package ehentai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers"
	"github.com/vrsandeep/mango-pages/internal/httpclient"
	"github.com/vrsandeep/mango-pages/internal/models"
)

// Viewer links look like https://e-hentai.org/s/0123abcd/2561-7.
var viewerLinkPattern = regexp.MustCompile(`https?://[^"'\s<>]+?/s/[0-9a-f]+/\d+-\d+`)

const maxIndexSize = 8 << 20

// EHentaiProvider implements the Provider interface for E.
type EHentaiProvider struct {
	client  *http.Client
	baseURL string
}

// New creates the provider. The client's cookie jar, if any, receives the
// nw=1 cookie that skips the content warning interstitial.
func New(client *http.Client, baseURL string) *EHentaiProvider {
	if client.Jar != nil {
		if u, err := url.Parse(baseURL); err == nil {
			client.Jar.SetCookies(u, []*http.Cookie{{Name: "nw", Value: "1", Path: "/"}})
		}
	}
	return &EHentaiProvider{client: client, baseURL: baseURL}
}

func (p *EHentaiProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:     "ehentai",
		Name:   "E-Hentai",
		Source: models.SourceE,
	}
}

func (p *EHentaiProvider) NewResolver(itemID string, items models.ItemRepository) (models.Resolver, error) {
	return &resolver{
		provider:  p,
		lookahead: providers.NewLookahead(itemID, items, p.indexPage),
	}, nil
}

// indexPage returns the viewer links listed on index page cursor.
func (p *EHentaiProvider) indexPage(ctx context.Context, itemURL string, cursor int) ([]string, error) {
	u, err := url.Parse(itemURL)
	if err != nil {
		return nil, models.ParseError(itemURL, "invalid gallery url")
	}
	q := u.Query()
	q.Set("p", strconv.Itoa(cursor))
	u.RawQuery = q.Encode()

	resp, err := httpclient.Get(ctx, p.client, u.String(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexSize))
	if err != nil {
		return nil, httpclient.Classify(err)
	}

	seen := make(map[string]bool)
	var links []string
	for _, link := range viewerLinkPattern.FindAllString(string(body), -1) {
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}
	return links, nil
}

type resolver struct {
	provider  *EHentaiProvider
	lookahead *providers.Lookahead
}

func (r *resolver) Resolve(ctx context.Context, page int) (models.PageRequest, error) {
	viewerURL, err := r.lookahead.Entry(ctx, page)
	if err != nil {
		return models.PageRequest{}, err
	}

	resp, err := httpclient.Get(ctx, r.provider.client, viewerURL, nil)
	if err != nil {
		return models.PageRequest{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.PageRequest{}, httpclient.Classify(err)
	}
	src, ok := doc.Find("img#img").Attr("src")
	if !ok || src == "" {
		return models.PageRequest{}, models.ParseError(viewerURL, fmt.Sprintf("no image on viewer page for page %d", page))
	}

	imageURL, err := providers.AbsoluteURL(viewerURL, src)
	if err != nil {
		return models.PageRequest{}, models.ParseError(viewerURL, "invalid image url "+src)
	}

	header := http.Header{}
	header.Set("Referer", viewerURL)
	return models.PageRequest{URL: imageURL, Header: header}, nil
}
