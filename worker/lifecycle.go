package worker

import (
	"context"
	"net/http"
	"sync"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/4Bfast/costs-hub-edge/store"
)

// Install precaches the static manifest. All-or-nothing: every asset is
// fetched and staged before anything is written, so a single failing asset
// leaves the static store untouched and the previous version in control.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	w.log.Info("installing, precaching %d assets", len(w.precache))

	var mutex sync.Mutex
	staged := make(map[string]store.Entry, len(w.precache))

	group, gctx := errgroup.WithContext(ctx)
	for _, path := range w.precache {
		group.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, path, nil)
			if err != nil {
				return cerrors.Wrapf(err, "invalid precache path %q", path)
			}
			resp, err := w.fetcher.Do(gctx, req)
			if err != nil {
				return cerrors.Wrapf(err, "failed to precache %s", path)
			}
			if !store.Cacheable(resp.StatusCode) {
				resp.Body.Close()
				return cerrors.Newf("failed to precache %s: status %d", path, resp.StatusCode)
			}
			entry, err := store.NewEntry(resp)
			resp.Body.Close()
			if err != nil {
				return cerrors.Wrapf(err, "failed to precache %s", path)
			}
			mutex.Lock()
			staged[store.Key(http.MethodGet, path)] = entry
			mutex.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		w.setState(StateFailed)
		return err
	}

	for key, entry := range staged {
		if err := store.Set(ctx, w.static, key, entry); err != nil {
			w.setState(StateFailed)
			return cerrors.Wrapf(err, "failed to write precached entry %s", key)
		}
	}

	w.setState(StateInstalled)
	w.log.Info("install complete")
	return nil
}

// Activate garbage-collects stores from prior versions, then takes control of
// traffic. Cleanup finishes before control is claimed so no request runs
// against a store scheduled for deletion. Per-store deletion failures are
// logged and skipped. Idempotent: a second run finds nothing to delete.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)

	names, err := w.registry.List(ctx)
	if err != nil {
		w.setState(StateFailed)
		return cerrors.Wrap(err, "failed to enumerate stores")
	}
	for _, name := range names {
		if w.names.Current(name) {
			continue
		}
		if err := w.registry.Delete(ctx, name); err != nil {
			w.log.Warn("failed to delete stale store %s: %v", name, err)
			continue
		}
		w.log.Info("deleted stale store %s", name)
	}

	w.setState(StateActive)
	w.log.Info("activated, claiming clients")
	return nil
}

// SkipWaiting activates a worker sitting in the waiting phase. A no-op in
// any other state.
func (w *Worker) SkipWaiting(ctx context.Context) {
	if w.State() != StateInstalled {
		return
	}
	w.log.Info("skip waiting requested")
	if err := w.Activate(ctx); err != nil {
		w.log.Error("activation failed: %v", err)
	}
}

// Start runs install and, unless the worker was created with Hold, activates
// immediately. It then starts the control channel subscriptions and the
// queue replay ticker, which run until the context is cancelled.
func (w *Worker) Start(ctx context.Context, replayInterval time.Duration) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	if !w.hold {
		if err := w.Activate(ctx); err != nil {
			return err
		}
	}
	if err := w.startControl(ctx); err != nil {
		return err
	}
	if replayInterval > 0 {
		go w.queue.Run(ctx, replayInterval)
	}
	return nil
}
