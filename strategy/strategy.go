package strategy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
)

// Strategy is one of the four cache policies a request can be routed through.
type Strategy int

const (
	CacheFirst Strategy = iota
	NetworkFirst
	StaleWhileRevalidate
	NetworkOnly
)

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	case NetworkOnly:
		return "network-only"
	default:
		return "unknown"
	}
}

// Fetcher performs the network leg of a strategy. Injected so tests can
// substitute doubles and count calls.
type Fetcher interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// Executor runs one cache policy for a request. The returned response is
// always non-nil when the error is nil; network failures surface as synthetic
// 503 responses, never as errors to the caller.
type Executor interface {
	Execute(ctx context.Context, req *http.Request) (*http.Response, error)
}

const (
	offlineMessage         = "Offline"
	networkRequiredMessage = "Network required"
)

// Synthetic builds a synthetic 503 response carrying a plain-text message,
// substituted whenever neither the network nor a cache can satisfy a request.
func Synthetic(message string) *http.Response {
	body := []byte(message)
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("X-Cache", "MISS")
	return &http.Response{
		StatusCode:    http.StatusServiceUnavailable,
		Status:        http.StatusText(http.StatusServiceUnavailable),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// SyntheticOffline returns the synthetic response substituted when neither
// the network nor a cache can satisfy a request.
func SyntheticOffline() *http.Response {
	return Synthetic(offlineMessage)
}

// IsNavigation reports whether a request is a page navigation, i.e. the
// browser expects an HTML document rather than data or an asset.
func IsNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
