package httpclient

import (
	"log"
	"net/http"
	"strings"
)

// LoggingTransport is an http.RoundTripper that logs outbound requests and
// response statuses. Bodies are never read, so streamed images are untouched.
type LoggingTransport struct {
	Base     http.RoundTripper
	LogLevel string
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if strings.ToLower(t.LogLevel) != "debug" {
		return base.RoundTrip(req)
	}

	log.Printf("DEBUG OUTBOUND REQUEST: [%s] %s", req.Method, req.URL.String())
	resp, err := base.RoundTrip(req)
	if err != nil {
		log.Printf("DEBUG OUTBOUND ERROR: %s: %v", req.URL.String(), err)
		return resp, err
	}
	log.Printf("DEBUG OUTBOUND RESPONSE: %d %s (%s, length=%d)",
		resp.StatusCode, req.URL.String(), resp.Header.Get("Content-Type"), resp.ContentLength)
	return resp, nil
}
