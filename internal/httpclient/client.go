// Package httpclient builds the HTTP client shared by resolvers and the
// download coordinator, and turns transport failures into models errors.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/vrsandeep/mango-pages/internal/config"
	"github.com/vrsandeep/mango-pages/internal/models"
	"golang.org/x/net/publicsuffix"
)

// New creates a client with a cookie jar, the configured user agent and socket
// timeout. With log_level "debug" every request is logged.
func New(cfg config.NetworkConfig) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	transport = &LoggingTransport{Base: transport, LogLevel: cfg.LogLevel}
	transport = &userAgentTransport{base: transport, userAgent: cfg.UserAgent}

	return &http.Client{
		Jar:       jar,
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// Get issues a GET with the extra headers. A response is returned only for 2xx
// statuses; anything else is closed and reported as a *models.ResolutionError.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.ResolutionError{Kind: models.ResolutionParse, URL: url, Reason: "bad url", Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, models.StatusError(resp.StatusCode, url)
	}
	return resp, nil
}

// Classify maps socket and deadline errors onto models.ErrTimeout. Other
// errors, including context cancellation, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrTimeout) || errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return err
}
