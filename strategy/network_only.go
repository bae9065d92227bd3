package strategy

import (
	"context"
	"net/http"

	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/metrics"
)

// networkOnlyExecutor is for sensitive endpoints (auth, settings, admin)
// where stale data is unacceptable: no cache is read or written, and there
// is no offline fallback.
type networkOnlyExecutor struct {
	fetcher Fetcher
	log     logger.Logger
	metrics *metrics.Metrics
}

var _ Executor = (*networkOnlyExecutor)(nil)

// NewNetworkOnly returns the network-only executor.
func NewNetworkOnly(fetcher Fetcher, log logger.Logger, m *metrics.Metrics) Executor {
	return &networkOnlyExecutor{fetcher: fetcher, log: log.WithPrefix("[network-only]"), metrics: m}
}

func (e *networkOnlyExecutor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := e.fetcher.Do(ctx, req)
	if err != nil {
		e.metrics.NetworkError()
		e.metrics.Synthetic()
		e.log.Debug("network required but unreachable for %s: %v", req.URL, err)
		return Synthetic(networkRequiredMessage), nil
	}
	return resp, nil
}
