package strategy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	cerrors "github.com/cockroachdb/errors"

	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/store"
)

// countingFetcher is a Fetcher double that counts calls and serves a fixed
// response or error.
type countingFetcher struct {
	calls  atomic.Int32
	status int
	body   string
	err    error
	// block, when non-nil, is closed to release a fetch that should hang.
	block chan struct{}
}

func (f *countingFetcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.body))),
		Request:    req,
	}, nil
}

var errNetworkDown = cerrors.New("connection refused")

func newTestStore(t *testing.T, name string) store.Store {
	t.Helper()
	return store.NewMemory().Open(name)
}

func getRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func testLogger() logger.Logger {
	return logger.NewTestLogger()
}
