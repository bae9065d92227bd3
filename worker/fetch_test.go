package worker

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedWorker(t *testing.T, origin *fakeOrigin) (*Worker, *passthroughRecorder) {
	t.Helper()
	passthru := &passthroughRecorder{}
	w := testWorker(t, origin, func(o *Options) { o.Passthrough = passthru })
	require.NoError(t, w.Start(context.Background(), 0))
	return w, passthru
}

func TestServeHTTPDispatchesGET(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":                 "x",
		"/offline.html":     "x",
		"/assets/app.js":    "x",
		"/assets/chart.css": "body{}",
	})
	w, passthru := startedWorker(t, origin)

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("GET", "/assets/chart.css", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
	assert.Empty(t, passthru.seen())

	// Cache-first: the second request never reaches the origin.
	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("GET", "/assets/chart.css", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, origin.callCount("/assets/chart.css"))
}

func TestServeHTTPForwardsMutationsToOrigin(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":               "x",
		"/offline.html":   "x",
		"/assets/app.js":  "x",
		"/api/v1/budgets": `{"id":7}`,
	})
	w, passthru := startedWorker(t, origin)

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/budgets", strings.NewReader(`{"limit":100}`)))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, `{"id":7}`, rec.Body.String())
	assert.Equal(t, 1, origin.callCount("/api/v1/budgets"))
	assert.Empty(t, passthru.seen())

	// Mutations never touch a cache store.
	for _, name := range w.Names().All() {
		keys, err := w.registry.Open(name).KeysContext(context.Background())
		require.NoError(t, err)
		assert.NotContains(t, keys, "POST /api/v1/budgets")
	}

	// Nothing was queued: the origin answered.
	pending, err := w.Queue().Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestServeHTTPOfflineMutationIsQueued(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":               "x",
		"/offline.html":   "x",
		"/assets/app.js":  "x",
		"/api/v1/budgets": "ok",
	})
	w, _ := startedWorker(t, origin)
	origin.offline.Store(true)

	req := httptest.NewRequest("POST", "/api/v1/budgets", strings.NewReader(`{"limit":100}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)

	assert.Equal(t, 202, rec.Code)
	assert.JSONEq(t, `{"queued":true}`, rec.Body.String())

	pending, err := w.Queue().Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "POST", pending[0].Method)
	assert.Equal(t, "/api/v1/budgets", pending[0].URL)
	assert.Equal(t, []byte(`{"limit":100}`), pending[0].Body)

	// Connectivity returns: a replay pass delivers the action and empties
	// the queue.
	origin.offline.Store(false)
	stats, err := w.Queue().Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Replayed)

	pending, err = w.Queue().Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestServeHTTPPassesThroughNonMutationMethods(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	w, passthru := startedWorker(t, origin)

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/v1/budgets", nil))

	assert.Equal(t, 202, rec.Code)
	assert.Equal(t, []string{"OPTIONS /api/v1/budgets"}, passthru.seen())
	assert.Equal(t, 0, origin.callCount("/api/v1/budgets"))
}

func TestServeHTTPPassesThroughBeforeActivation(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	passthru := &passthroughRecorder{}
	w := testWorker(t, origin, func(o *Options) {
		o.Passthrough = passthru
		o.Hold = true
	})
	require.NoError(t, w.Start(context.Background(), 0))
	require.Equal(t, StateInstalled, w.State())

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))
	assert.Equal(t, []string{"GET /dashboard"}, passthru.seen())
}

func TestServeHTTPOfflineNavigationGetsFallbackPage(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "<html>home</html>",
		"/offline.html":  "<html>you are offline</html>",
		"/assets/app.js": "x",
	})
	w, _ := startedWorker(t, origin)
	origin.offline.Store(true)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept", "text/html")

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "<html>you are offline</html>", rec.Body.String())
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestServeHTTPOfflineDataRequestGetsSynthetic(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	w, _ := startedWorker(t, origin)
	origin.offline.Store(true)

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("GET", "/reports/export", nil))

	assert.Equal(t, 503, rec.Code)
	assert.Equal(t, "Offline", rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}
