// Package upstream performs the network leg of every cache strategy: fetches
// against the costs-hub origin with a bounded per-request timeout, retry on
// transient connection errors, and an optional circuit breaker so a dead
// origin fails fast into the offline paths.
package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	cerrors "github.com/cockroachdb/errors"

	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/resilience"
	"github.com/4Bfast/costs-hub-edge/strategy"
)

var Version = "dev"

// DefaultRequestTimeout bounds a single upstream fetch. A hung origin request
// resolves as a network failure instead of never resolving.
const DefaultRequestTimeout = 30 * time.Second

type defaultRoundTripper struct {
	next http.RoundTripper
}

func (d *defaultRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "costs-hub-edge/"+Version)
	}
	return d.next.RoundTrip(req)
}

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

type Option func(*clientOptions)

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithRequestTimeout sets the per-request timeout. Defaults to
// DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRetryConfig sets the retry policy for transient connection errors.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(o *clientOptions) { o.retry = cfg }
}

// WithCircuitBreaker wraps every fetch in the given circuit breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *clientOptions) { o.breaker = cb }
}

// Client implements strategy.Fetcher against a single upstream origin.
type Client struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	log     logger.Logger
}

var _ strategy.Fetcher = (*Client)(nil)

// New returns a Client for the given origin base URL (scheme + host).
func New(baseURL string, log logger.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, cerrors.Wrapf(err, "invalid upstream base url %q", baseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, cerrors.Newf("upstream base url %q must be http or https", baseURL)
	}

	options := clientOptions{
		timeout: DefaultRequestTimeout,
		retry: resilience.RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    50 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
			RetryableErrors:   isTransient,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	hc := options.httpClient
	if hc == nil {
		hc = &http.Client{Transport: &defaultRoundTripper{next: http.DefaultTransport}}
	}

	return &Client{
		base:    base,
		client:  hc,
		timeout: options.timeout,
		retry:   options.retry,
		breaker: options.breaker,
		log:     log.WithPrefix("[upstream]"),
	}, nil
}

// isTransient reports whether a fetch error is worth retrying. Timeouts and
// cancellations are not: the caller's budget is already spent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(err.Error(), "EOF")
}

// Resolve returns the absolute origin URL for a path.
func (c *Client) Resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String()
	}
	return c.base.ResolveReference(ref).String()
}

// Get fetches a path (or absolute URL) from the origin.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Resolve(path), nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Do executes the request against the origin. Relative request URLs are
// resolved against the base. Retries apply only to bodyless requests.
//
// The returned response body stays readable after Do returns; the timeout
// context is released when the caller closes the body (or when the deadline
// fires), not when Do returns.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := c.rewrite(req)

	fctx, cancel := context.WithTimeout(ctx, c.timeout)

	var resp *http.Response
	attempt := func(ctx context.Context) error {
		r, err := c.client.Do(out.Clone(ctx))
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	retryable := (out.Method == http.MethodGet || out.Method == http.MethodHead) && out.Body == nil
	run := func(ctx context.Context) error {
		if !retryable {
			return attempt(ctx)
		}
		return resilience.Retry(ctx, c.retry, func() error { return attempt(ctx) })
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Do(fctx, run)
	} else {
		err = run(fctx)
	}
	if err != nil {
		cancel()
		c.log.Debug("fetch failed for %s %s: %v", out.Method, out.URL, err)
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps a request's timeout context alive until the body has
// been consumed. Cancelling when Do returns would abort the transport's body
// stream mid-read.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (c *Client) rewrite(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	// Server-side requests carry a RequestURI, which a client request must not.
	out.RequestURI = ""
	if !out.URL.IsAbs() {
		u := *out.URL
		u.Scheme = c.base.Scheme
		u.Host = c.base.Host
		out.URL = &u
		out.Host = ""
	}
	return out
}
