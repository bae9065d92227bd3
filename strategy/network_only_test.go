package strategy

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkOnlyPassesResponseVerbatim(t *testing.T) {
	fetcher := &countingFetcher{body: `{"token":"abc"}`}
	executor := NewNetworkOnly(fetcher, testLogger(), nil)

	resp, err := executor.Execute(context.Background(), getRequest(t, "/api/auth/session"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"token":"abc"}`, readBody(t, resp))
	assert.EqualValues(t, 1, fetcher.calls.Load())
}

func TestNetworkOnlyOfflineHasNoFallback(t *testing.T) {
	executor := NewNetworkOnly(&countingFetcher{err: errNetworkDown}, testLogger(), nil)

	resp, err := executor.Execute(context.Background(), getRequest(t, "/api/auth/session"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	// A distinct message signals that no offline fallback exists here.
	assert.Equal(t, "Network required", readBody(t, resp))
}

func TestSyntheticResponseShape(t *testing.T) {
	resp := Synthetic("Offline")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Offline", readBody(t, resp))
}

func TestSyntheticOffline(t *testing.T) {
	// The shared offline response keeps callers from hand-rolling the
	// message and letting it drift.
	resp := SyntheticOffline()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Offline", readBody(t, resp))
}
