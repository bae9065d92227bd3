// Package syncqueue holds actions that could not complete while offline and
// replays them against the origin once connectivity returns. Each queued
// action carries its own attempt counter and next-attempt time so replay is
// bounded with exponential backoff instead of retrying forever.
package syncqueue

import (
	"bytes"
	"context"
	"net/http"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/metrics"
	"github.com/4Bfast/costs-hub-edge/resilience"
	"github.com/4Bfast/costs-hub-edge/store"
	"github.com/4Bfast/costs-hub-edge/strategy"
)

// Action is a captured request pending replay.
type Action struct {
	ID          string              `msgpack:"id"`
	Method      string              `msgpack:"method"`
	URL         string              `msgpack:"url"`
	Header      map[string][]string `msgpack:"header"`
	Body        []byte              `msgpack:"body"`
	Attempts    int                 `msgpack:"attempts"`
	NextAttempt time.Time           `msgpack:"next_attempt"`
	EnqueuedAt  time.Time           `msgpack:"enqueued_at"`
}

// Policy bounds replay of a single action.
type Policy struct {
	// MaxAttempts is the number of replay attempts before an action is
	// dropped.
	MaxAttempts int
	// Backoff shapes the delay between attempts.
	Backoff resilience.RetryConfig
}

// DefaultPolicy retries an action up to 8 times over roughly a day.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 8,
		Backoff: resilience.RetryConfig{
			InitialBackoff:    time.Minute,
			MaxBackoff:        4 * time.Hour,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	}
}

// ReplayStats summarizes one replay pass.
type ReplayStats struct {
	Replayed int
	Failed   int
	Dropped  int
	Skipped  int
}

// Queue is the persistent offline action queue.
type Queue struct {
	store   store.Store
	fetcher strategy.Fetcher
	policy  Policy
	log     logger.Logger
	metrics *metrics.Metrics
}

// New returns a Queue persisting into the given store (conventionally the
// offline-actions store).
func New(s store.Store, fetcher strategy.Fetcher, policy Policy, log logger.Logger, m *metrics.Metrics) *Queue {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	return &Queue{
		store:   s,
		fetcher: fetcher,
		policy:  policy,
		log:     log.WithPrefix("[syncqueue]"),
		metrics: m,
	}
}

// Capture builds an Action from a request, consuming its body.
func Capture(req *http.Request) (Action, error) {
	var body []byte
	if req.Body != nil {
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(req.Body); err != nil {
			return Action{}, err
		}
		req.Body.Close()
		body = buf.Bytes()
	}
	return Action{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header,
		Body:   body,
	}, nil
}

// Enqueue persists an action for later replay, assigning an ID and first
// attempt time if unset.
func (q *Queue) Enqueue(ctx context.Context, action Action) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.EnqueuedAt.IsZero() {
		action.EnqueuedAt = time.Now()
	}
	if action.NextAttempt.IsZero() {
		action.NextAttempt = time.Now()
	}
	if err := store.Set(ctx, q.store, action.ID, action); err != nil {
		return err
	}
	q.log.Debug("queued offline action %s %s (%s)", action.Method, action.URL, action.ID)
	return nil
}

// Pending returns all queued actions.
func (q *Queue) Pending(ctx context.Context) ([]Action, error) {
	keys, err := q.store.KeysContext(ctx)
	if err != nil {
		return nil, err
	}
	actions := make([]Action, 0, len(keys))
	for _, key := range keys {
		found, action, err := store.Get[Action](ctx, q.store, key)
		if err != nil {
			return nil, err
		}
		if found {
			actions = append(actions, action)
		}
	}
	return actions, nil
}

// Replay attempts every due action once. Successful actions leave the queue;
// failed ones get a later next-attempt time or are dropped once their
// attempts are exhausted. Actions whose backoff has not elapsed are skipped.
func (q *Queue) Replay(ctx context.Context) (ReplayStats, error) {
	actions, err := q.Pending(ctx)
	if err != nil {
		return ReplayStats{}, err
	}

	var stats ReplayStats
	now := time.Now()
	for _, action := range actions {
		if action.NextAttempt.After(now) {
			stats.Skipped++
			continue
		}
		if err := q.replayOne(ctx, action); err != nil {
			q.metrics.ReplayFailure()
			stats.Failed++
			q.reschedule(ctx, action, &stats)
			continue
		}
		q.metrics.ReplaySuccess()
		stats.Replayed++
		if _, err := q.store.DeleteContext(ctx, action.ID); err != nil {
			q.log.Warn("failed to remove replayed action %s: %v", action.ID, err)
		}
	}
	if stats.Replayed > 0 || stats.Failed > 0 || stats.Dropped > 0 {
		q.log.Info("replay pass: %d replayed, %d failed, %d dropped, %d not yet due",
			stats.Replayed, stats.Failed, stats.Dropped, stats.Skipped)
	}
	return stats, nil
}

func (q *Queue) replayOne(ctx context.Context, action Action) error {
	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, bytes.NewReader(action.Body))
	if err != nil {
		return err
	}
	for k, v := range action.Header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	resp, err := q.fetcher.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return cerrors.Newf("origin returned status %d", resp.StatusCode)
	}
	return nil
}

func (q *Queue) reschedule(ctx context.Context, action Action, stats *ReplayStats) {
	action.Attempts++
	if action.Attempts >= q.policy.MaxAttempts {
		q.metrics.ReplayDropped()
		stats.Dropped++
		q.log.Warn("dropping offline action %s %s after %d attempts", action.Method, action.URL, action.Attempts)
		if _, err := q.store.DeleteContext(ctx, action.ID); err != nil {
			q.log.Warn("failed to remove dropped action %s: %v", action.ID, err)
		}
		return
	}
	action.NextAttempt = time.Now().Add(resilience.Backoff(action.Attempts-1, q.policy.Backoff))
	if err := store.Set(ctx, q.store, action.ID, action); err != nil {
		q.log.Warn("failed to reschedule action %s: %v", action.ID, err)
	}
}

// Run replays the queue on a fixed interval until the context is cancelled.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.Replay(ctx); err != nil {
				q.log.Warn("replay pass failed: %v", err)
			}
		}
	}
}
