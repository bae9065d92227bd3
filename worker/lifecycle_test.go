package worker

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4Bfast/costs-hub-edge/store"
)

func TestInstallPrecachesManifest(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "<html>home</html>",
		"/offline.html":  "<html>offline</html>",
		"/assets/app.js": "console.log(1)",
	})
	w := testWorker(t, origin, nil)

	require.NoError(t, w.Install(context.Background()))
	assert.Equal(t, StateInstalled, w.State())

	s := w.registry.Open(w.names.Static)
	for path, body := range map[string]string{
		"/offline.html":  "<html>offline</html>",
		"/assets/app.js": "console.log(1)",
	} {
		found, entry, err := store.Get[store.Entry](context.Background(), s, store.Key(http.MethodGet, path))
		require.NoError(t, err)
		require.True(t, found, "expected %s to be precached", path)
		assert.Equal(t, body, string(entry.Body))
	}
}

func TestInstallIsAllOrNothing(t *testing.T) {
	// /assets/app.js is missing from the origin, so its 404 must abort the
	// install without committing the assets that did fetch.
	origin := newFakeOrigin(map[string]string{
		"/":             "<html>home</html>",
		"/offline.html": "<html>offline</html>",
	})
	w := testWorker(t, origin, nil)

	err := w.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, w.State())

	s := w.registry.Open(w.names.Static)
	keys, err := s.KeysContext(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestActivateDeletesStaleStores(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	registry := store.NewMemory()

	// Populate a prior version's stores and the action queue.
	for _, name := range store.NamesFor("v1").All() {
		require.NoError(t, registry.Open(name).SetContext(context.Background(), "GET /old", []byte("stale")))
	}
	require.NoError(t, registry.Open(store.OfflineActions).SetContext(context.Background(), "a1", []byte("pending")))

	w := testWorker(t, origin, func(o *Options) {
		o.Registry = registry
		o.Version = "v2"
	})
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	assert.Equal(t, StateActive, w.State())

	names, err := registry.List(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, names, "costshub-static-v1")
	assert.NotContains(t, names, "costshub-dynamic-v1")
	assert.NotContains(t, names, "costshub-api-v1")
	assert.Contains(t, names, "costshub-static-v2")
	// The unversioned action queue survives activation.
	assert.Contains(t, names, store.OfflineActions)
}

func TestActivateIsIdempotent(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	w := testWorker(t, origin, nil)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	before, err := w.registry.List(context.Background())
	require.NoError(t, err)

	require.NoError(t, w.Activate(context.Background()))
	assert.Equal(t, StateActive, w.State())

	after, err := w.registry.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestSkipWaiting(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	w := testWorker(t, origin, func(o *Options) { o.Hold = true })

	// Before install there is nothing to skip.
	w.SkipWaiting(context.Background())
	assert.Equal(t, StateNew, w.State())

	require.NoError(t, w.Install(context.Background()))
	assert.Equal(t, StateInstalled, w.State())

	w.SkipWaiting(context.Background())
	assert.Equal(t, StateActive, w.State())
}

func TestStartHoldsInWaitingPhase(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	w := testWorker(t, origin, func(o *Options) { o.Hold = true })

	require.NoError(t, w.Start(context.Background(), 0))
	assert.Equal(t, StateInstalled, w.State())
}

func TestStartActivatesImmediately(t *testing.T) {
	origin := newFakeOrigin(map[string]string{
		"/":              "x",
		"/offline.html":  "x",
		"/assets/app.js": "x",
	})
	w := testWorker(t, origin, nil)

	require.NoError(t, w.Start(context.Background(), 0))
	assert.Equal(t, StateActive, w.State())
}
