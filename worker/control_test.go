package worker

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4Bfast/costs-hub-edge/eventing"
	"github.com/4Bfast/costs-hub-edge/notify"
	"github.com/4Bfast/costs-hub-edge/store"
	"github.com/4Bfast/costs-hub-edge/syncqueue"
)

type recordingNotifier struct {
	mutex sync.Mutex
	sent  []notify.Notification
}

func (n *recordingNotifier) Send(_ context.Context, notification notify.Notification) error {
	n.mutex.Lock()
	n.sent = append(n.sent, notification)
	n.mutex.Unlock()
	return nil
}

func (n *recordingNotifier) notifications() []notify.Notification {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	out := make([]notify.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

func controlWorker(t *testing.T, origin *fakeOrigin, events eventing.Client, notifier notify.Notifier, hold bool) *Worker {
	t.Helper()
	w := testWorker(t, origin, func(o *Options) {
		o.Events = events
		o.Notifier = notifier
		o.Hold = hold
	})
	require.NoError(t, w.Start(context.Background(), 0))
	return w
}

func precacheOrigin(extra map[string]string) *fakeOrigin {
	bodies := map[string]string{
		"/":              "home",
		"/offline.html":  "offline",
		"/assets/app.js": "js",
	}
	for path, body := range extra {
		bodies[path] = body
	}
	return newFakeOrigin(bodies)
}

func TestControlSkipWaitingMessage(t *testing.T) {
	events := eventing.NewMemory()
	w := controlWorker(t, precacheOrigin(nil), events, nil, true)
	require.Equal(t, StateInstalled, w.State())

	require.NoError(t, events.Publish(context.Background(), SubjectControl, []byte(`{"type":"SKIP_WAITING"}`)))
	assert.Equal(t, StateActive, w.State())
}

func TestControlCacheURLsPrimesDynamicStore(t *testing.T) {
	events := eventing.NewMemory()
	origin := precacheOrigin(map[string]string{
		"/api/v1/providers": `["aws","gcp"]`,
	})
	w := controlWorker(t, origin, events, nil, false)

	msg := []byte(`{"type":"CACHE_URLS","urls":["/api/v1/providers","/nonexistent"]}`)
	require.NoError(t, events.Publish(context.Background(), SubjectControl, msg))

	dynamic := w.registry.Open(w.names.Dynamic)
	found, entry, err := store.Get[store.Entry](context.Background(), dynamic, store.Key(http.MethodGet, "/api/v1/providers"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `["aws","gcp"]`, string(entry.Body))

	// The 404 URL is skipped, not cached.
	found, _, err = store.Get[store.Entry](context.Background(), dynamic, store.Key(http.MethodGet, "/nonexistent"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestControlSyncReplaysQueue(t *testing.T) {
	events := eventing.NewMemory()
	origin := precacheOrigin(map[string]string{
		"/api/v1/budgets": "ok",
	})
	w := controlWorker(t, origin, events, nil, false)

	require.NoError(t, w.Queue().Enqueue(context.Background(), syncqueue.Action{
		Method: http.MethodPost,
		URL:    "/api/v1/budgets",
		Body:   []byte(`{"limit":100}`),
	}))

	require.NoError(t, events.Publish(context.Background(), SubjectControl, []byte(`{"type":"SYNC","tag":"background-sync"}`)))

	pending, err := w.Queue().Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, origin.requests(), "POST /api/v1/budgets")
}

func TestControlSyncIgnoresForeignTag(t *testing.T) {
	events := eventing.NewMemory()
	origin := precacheOrigin(nil)
	w := controlWorker(t, origin, events, nil, false)

	require.NoError(t, w.Queue().Enqueue(context.Background(), syncqueue.Action{
		Method: http.MethodPost,
		URL:    "/api/v1/budgets",
	}))

	require.NoError(t, events.Publish(context.Background(), SubjectControl, []byte(`{"type":"SYNC","tag":"periodic-refresh"}`)))

	pending, err := w.Queue().Pending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestControlMalformedMessageIsDropped(t *testing.T) {
	events := eventing.NewMemory()
	w := controlWorker(t, precacheOrigin(nil), events, nil, true)

	require.NoError(t, events.Publish(context.Background(), SubjectControl, []byte(`{not json`)))
	require.NoError(t, events.Publish(context.Background(), SubjectControl, []byte(`{"type":"UNKNOWN"}`)))
	assert.Equal(t, StateInstalled, w.State())
}

func TestPushNotification(t *testing.T) {
	events := eventing.NewMemory()
	notifier := &recordingNotifier{}
	controlWorker(t, precacheOrigin(nil), events, notifier, false)

	payload := []byte(`{"title":"Budget alert","body":"AWS spend at 92%","data":{"url":"/dashboard"}}`)
	require.NoError(t, events.Publish(context.Background(), SubjectPush, payload))

	sent := notifier.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "Budget alert", sent[0].Title)
	assert.Equal(t, "AWS spend at 92%", sent[0].Body)
	assert.Equal(t, "/dashboard", sent[0].URL)
	assert.Equal(t, []string{"view", "dismiss"}, sent[0].Actions)
}

func TestPushWithoutTitleIsDropped(t *testing.T) {
	events := eventing.NewMemory()
	notifier := &recordingNotifier{}
	controlWorker(t, precacheOrigin(nil), events, notifier, false)

	require.NoError(t, events.Publish(context.Background(), SubjectPush, []byte(`{"body":"no title"}`)))
	assert.Empty(t, notifier.notifications())
}
