package strategy

import (
	"context"
	"net/http"

	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/metrics"
	"github.com/4Bfast/costs-hub-edge/store"
)

// cacheFirstExecutor serves static assets: the store wins, the network is
// only consulted on a miss. A miss issues exactly one network fetch, and the
// cache write completes before the response is returned so a crash right
// after the response cannot lose the entry.
type cacheFirstExecutor struct {
	store   store.Store
	fetcher Fetcher
	log     logger.Logger
	metrics *metrics.Metrics
}

var _ Executor = (*cacheFirstExecutor)(nil)

// NewCacheFirst returns the cache-first executor writing to the given store
// (conventionally the static store).
func NewCacheFirst(s store.Store, fetcher Fetcher, log logger.Logger, m *metrics.Metrics) Executor {
	return &cacheFirstExecutor{store: s, fetcher: fetcher, log: log.WithPrefix("[cache-first]"), metrics: m}
}

func (e *cacheFirstExecutor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	key := store.Key(req.Method, req.URL.RequestURI())

	found, entry, err := store.Get[store.Entry](ctx, e.store, key)
	if err != nil {
		// A broken store read degrades to a miss.
		e.log.Warn("store read failed for %s: %v", key, err)
	}
	if found {
		e.metrics.Hit(CacheFirst.String())
		return entry.Response(), nil
	}
	e.metrics.Miss(CacheFirst.String())

	resp, err := e.fetcher.Do(ctx, req)
	if err != nil {
		e.metrics.NetworkError()
		e.metrics.Synthetic()
		e.log.Debug("offline and no cached entry for %s", key)
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
	if err := store.Set(ctx, e.store, key, entry); err != nil {
		// Best-effort caching: the response was already obtained.
		e.log.Warn("store write failed for %s: %v", key, err)
	}
	live := entry.Response()
	live.Header.Set("X-Cache", "MISS")
	return live, nil
}
