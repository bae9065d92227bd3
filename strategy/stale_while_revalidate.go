package strategy

import (
	"context"
	"net/http"

	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/metrics"
	"github.com/4Bfast/costs-hub-edge/store"
	"golang.org/x/sync/singleflight"
)

// swrExecutor serves analytical API responses from the store immediately and
// revalidates in the background. The caller is never held up by a cache
// write; a single request may observe stale data, and concurrent requests
// racing a revalidation resolve through the store's last-write-wins
// semantics. Revalidations for the same key are deduplicated.
type swrExecutor struct {
	store   store.Store
	fetcher Fetcher
	group   singleflight.Group
	log     logger.Logger
	metrics *metrics.Metrics
}

var _ Executor = (*swrExecutor)(nil)

// NewStaleWhileRevalidate returns the stale-while-revalidate executor writing
// to the given store (conventionally the API store).
func NewStaleWhileRevalidate(s store.Store, fetcher Fetcher, log logger.Logger, m *metrics.Metrics) Executor {
	return &swrExecutor{store: s, fetcher: fetcher, log: log.WithPrefix("[swr]"), metrics: m}
}

func (e *swrExecutor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	key := store.Key(req.Method, req.URL.RequestURI())

	found, entry, err := store.Get[store.Entry](ctx, e.store, key)
	if err != nil {
		e.log.Warn("store read failed for %s: %v", key, err)
	}
	if found {
		e.metrics.Hit(StaleWhileRevalidate.String())
		// Deliberately unawaited: the stale entry is returned now, the
		// fresh one lands in the store for future requests.
		background := context.WithoutCancel(ctx)
		go e.revalidate(background, req.Clone(background), key)
		return entry.Response(), nil
	}
	e.metrics.Miss(StaleWhileRevalidate.String())

	resp, err := e.fetcher.Do(ctx, req)
	if err != nil {
		e.metrics.NetworkError()
		e.metrics.Synthetic()
		return Synthetic(offlineMessage), nil
	}
	if !store.Cacheable(resp.StatusCode) {
		return resp, nil
	}
	entry, err = store.NewEntry(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	// Fire-and-forget write; the caller already has the response.
	go func() {
		if err := store.Set(context.WithoutCancel(ctx), e.store, key, entry); err != nil {
			e.log.Warn("store write failed for %s: %v", key, err)
		}
	}()
	live := entry.Response()
	live.Header.Set("X-Cache", "MISS")
	return live, nil
}

func (e *swrExecutor) revalidate(ctx context.Context, req *http.Request, key string) {
	_, _, _ = e.group.Do(key, func() (interface{}, error) {
		resp, err := e.fetcher.Do(ctx, req)
		if err != nil {
			e.metrics.NetworkError()
			e.log.Debug("revalidation failed for %s: %v", key, err)
			return nil, err
		}
		defer resp.Body.Close()
		if !store.Cacheable(resp.StatusCode) {
			return nil, nil
		}
		entry, err := store.NewEntry(resp)
		if err != nil {
			return nil, err
		}
		if err := store.Set(ctx, e.store, key, entry); err != nil {
			e.log.Warn("revalidation write failed for %s: %v", key, err)
			return nil, err
		}
		e.log.Trace("revalidated %s", key)
		return nil, nil
	})
}
