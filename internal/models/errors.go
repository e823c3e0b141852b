package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPageOutOfRange is returned when a page index is outside [0, pageCount).
	// It indicates a caller bug and is never retried.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrNetworkUnavailable is returned when the connectivity preflight fails.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrTimeout is returned when a transfer hits the socket timeout.
	ErrTimeout = errors.New("transfer timed out")
	// ErrUnsupportedSource is returned for sources without a working resolver.
	ErrUnsupportedSource = errors.New("unsupported source")

	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrParse            = errors.New("unparseable response")
)

// PageRangeError reports an out-of-range page index.
type PageRangeError struct {
	Page      int
	PageCount int
}

func (e *PageRangeError) Error() string {
	return fmt.Sprintf("page %d out of range [0, %d)", e.Page, e.PageCount)
}

func (e *PageRangeError) Is(target error) bool {
	return target == ErrPageOutOfRange
}

// ResolutionKind classifies why a remote source rejected a request.
type ResolutionKind int

const (
	ResolutionForbidden ResolutionKind = iota
	ResolutionNotFound
	ResolutionUnexpectedStatus
	ResolutionParse
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionForbidden:
		return "forbidden"
	case ResolutionNotFound:
		return "not found"
	case ResolutionUnexpectedStatus:
		return "unexpected status"
	default:
		return "parse error"
	}
}

func (k ResolutionKind) sentinel() error {
	switch k {
	case ResolutionForbidden:
		return ErrForbidden
	case ResolutionNotFound:
		return ErrNotFound
	case ResolutionUnexpectedStatus:
		return ErrUnexpectedStatus
	default:
		return ErrParse
	}
}

// ResolutionError is returned when the remote source rejected or returned
// unparseable data, either while resolving a page URL or downloading it.
type ResolutionError struct {
	Kind   ResolutionKind
	Status int
	URL    string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.URL != "" {
		msg += " for " + e.URL
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func (e *ResolutionError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// StatusError builds the ResolutionError matching an HTTP status code.
func StatusError(status int, url string) *ResolutionError {
	kind := ResolutionUnexpectedStatus
	switch status {
	case 403:
		kind = ResolutionForbidden
	case 404:
		kind = ResolutionNotFound
	}
	return &ResolutionError{Kind: kind, Status: status, URL: url}
}

// ParseError builds a ResolutionError for a response that could not be understood.
func ParseError(url, reason string) *ResolutionError {
	return &ResolutionError{Kind: ResolutionParse, URL: url, Reason: reason}
}

// IOError wraps a local disk failure. It is fatal for the current operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether a failed fetch may succeed when the user retries.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	var resErr *ResolutionError
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &resErr)
}
