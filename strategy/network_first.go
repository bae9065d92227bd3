package strategy

import (
	"context"
	"net/http"

	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/metrics"
	"github.com/4Bfast/costs-hub-edge/store"
)

// networkFirstExecutor prefers the live network and keeps the dynamic store
// as a fallback for offline periods. Staleness of the fallback is bounded
// only by how recently the resource was last fetched successfully.
type networkFirstExecutor struct {
	store       store.Store
	static      store.Store
	fetcher     Fetcher
	fallbackURL string
	log         logger.Logger
	metrics     *metrics.Metrics
}

var _ Executor = (*networkFirstExecutor)(nil)

// NewNetworkFirst returns the network-first executor. Offline navigation
// requests that have no cached entry are answered with the offline fallback
// page, looked up in the static store under fallbackURL.
func NewNetworkFirst(dynamic, static store.Store, fetcher Fetcher, fallbackURL string, log logger.Logger, m *metrics.Metrics) Executor {
	return &networkFirstExecutor{
		store:       dynamic,
		static:      static,
		fetcher:     fetcher,
		fallbackURL: fallbackURL,
		log:         log.WithPrefix("[network-first]"),
		metrics:     m,
	}
}

func (e *networkFirstExecutor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	key := store.Key(req.Method, req.URL.RequestURI())

	resp, err := e.fetcher.Do(ctx, req)
	if err == nil {
		if !store.Cacheable(resp.StatusCode) {
			return resp, nil
		}
		entry, err := store.NewEntry(resp)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if err := store.Set(ctx, e.store, key, entry); err != nil {
			e.log.Warn("store write failed for %s: %v", key, err)
		}
		live := entry.Response()
		live.Header.Set("X-Cache", "MISS")
		return live, nil
	}

	e.metrics.NetworkError()
	e.log.Debug("network failed for %s, falling back to cache: %v", key, err)

	found, entry, gerr := store.Get[store.Entry](ctx, e.store, key)
	if gerr != nil {
		e.log.Warn("store read failed for %s: %v", key, gerr)
	}
	if found {
		e.metrics.Hit(NetworkFirst.String())
		return entry.Response(), nil
	}
	e.metrics.Miss(NetworkFirst.String())

	if IsNavigation(req) {
		fallbackKey := store.Key(http.MethodGet, e.fallbackURL)
		found, fallback, ferr := store.Get[store.Entry](ctx, e.static, fallbackKey)
		if ferr != nil {
			e.log.Warn("fallback page read failed: %v", ferr)
		}
		if found {
			return fallback.Response(), nil
		}
	}

	e.metrics.Synthetic()
	return Synthetic(offlineMessage), nil
}
