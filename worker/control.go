package worker

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/4Bfast/costs-hub-edge/eventing"
	"github.com/4Bfast/costs-hub-edge/notify"
	"github.com/4Bfast/costs-hub-edge/store"
)

// Control channel subjects.
const (
	SubjectControl = "costshub.edge.control"
	SubjectPush    = "costshub.edge.push"
)

// Control message types.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageCacheURLs   = "CACHE_URLS"
	MessageSync        = "SYNC"
)

// SyncTag is the only sync tag the worker replays on.
const SyncTag = "background-sync"

type controlMessage struct {
	Type string   `json:"type"`
	URLs []string `json:"urls,omitempty"`
	Tag  string   `json:"tag,omitempty"`
}

// startControl subscribes to the control and push subjects. Without an
// events client the worker runs with no control channel.
func (w *Worker) startControl(ctx context.Context) error {
	if w.events == nil {
		return nil
	}
	if _, err := w.events.Subscribe(ctx, SubjectControl, w.handleControl); err != nil {
		return err
	}
	if _, err := w.events.Subscribe(ctx, SubjectPush, w.handlePush); err != nil {
		return err
	}
	w.log.Debug("control channel subscribed")
	return nil
}

func (w *Worker) handleControl(ctx context.Context, msg eventing.Message) {
	var control controlMessage
	if err := json.Unmarshal(msg.Data(), &control); err != nil {
		w.log.Warn("dropping malformed control message: %v", err)
		return
	}
	switch control.Type {
	case MessageSkipWaiting:
		w.SkipWaiting(ctx)
	case MessageCacheURLs:
		w.PrimeURLs(ctx, control.URLs)
	case MessageSync:
		if control.Tag != "" && control.Tag != SyncTag {
			w.log.Debug("ignoring sync with tag %q", control.Tag)
			return
		}
		if _, err := w.queue.Replay(ctx); err != nil {
			w.log.Warn("sync replay failed: %v", err)
		}
	default:
		w.log.Debug("ignoring control message type %q", control.Type)
	}
}

// PrimeURLs fetches the given origin-relative paths and writes them into the
// dynamic store. Best-effort per URL.
func (w *Worker) PrimeURLs(ctx context.Context, urls []string) {
	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			w.log.Warn("cannot prime invalid url %q: %v", u, err)
			continue
		}
		resp, err := w.fetcher.Do(ctx, req)
		if err != nil {
			w.log.Warn("failed to prime %s: %v", u, err)
			continue
		}
		if !store.Cacheable(resp.StatusCode) {
			resp.Body.Close()
			w.log.Warn("not priming %s: status %d", u, resp.StatusCode)
			continue
		}
		entry, err := store.NewEntry(resp)
		resp.Body.Close()
		if err != nil {
			w.log.Warn("failed to prime %s: %v", u, err)
			continue
		}
		if err := store.Set(ctx, w.dynamic, store.Key(http.MethodGet, u), entry); err != nil {
			w.log.Warn("failed to prime %s: %v", u, err)
			continue
		}
		w.log.Debug("primed %s", u)
	}
}

func (w *Worker) handlePush(ctx context.Context, msg eventing.Message) {
	notification, err := notify.ParsePush(msg.Data())
	if err != nil {
		w.log.Warn("dropping push: %v", err)
		return
	}
	if w.notifier == nil {
		w.log.Debug("no notifier configured, dropping push %q", notification.Title)
		return
	}
	if err := w.notifier.Send(ctx, notification); err != nil {
		w.log.Warn("failed to deliver push %q: %v", notification.Title, err)
	}
}
