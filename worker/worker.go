// Package worker is the edge's service surface: it owns the versioned cache
// stores, routes intercepted requests through the strategy executors, and
// runs the install/activate lifecycle, the offline action queue, and the
// control channel.
package worker

import (
	"net/http"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/4Bfast/costs-hub-edge/eventing"
	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/metrics"
	"github.com/4Bfast/costs-hub-edge/notify"
	"github.com/4Bfast/costs-hub-edge/store"
	"github.com/4Bfast/costs-hub-edge/strategy"
	"github.com/4Bfast/costs-hub-edge/syncqueue"
)

// State is the worker's lifecycle state.
type State int32

const (
	StateNew State = iota
	StateInstalling
	// StateInstalled is the waiting phase: the precache is committed but the
	// worker is not yet serving intercepted traffic.
	StateInstalled
	StateActivating
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Worker.
type Options struct {
	// Registry is the store backend.
	Registry store.Registry
	// Version tags the current store names.
	Version string
	// Selector classifies request URLs into strategies.
	Selector *strategy.Selector
	// Fetcher performs network fetches against the origin.
	Fetcher strategy.Fetcher
	// Passthrough handles requests the worker does not intercept
	// (non-GET methods, traffic before activation).
	Passthrough http.Handler
	// Precache is the static manifest, as origin-relative paths.
	Precache []string
	// FallbackPath is the offline fallback page path. Must be in Precache.
	FallbackPath string
	// Hold keeps the worker in the waiting phase after install until
	// SkipWaiting is called (via the control channel or directly).
	Hold bool
	// QueuePolicy bounds offline action replay.
	QueuePolicy syncqueue.Policy
	// Events is the control/push channel. Optional.
	Events eventing.Client
	// Notifier displays push notifications. Optional.
	Notifier notify.Notifier
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

// Worker dispatches intercepted requests through cache strategies.
type Worker struct {
	registry  store.Registry
	names     store.Names
	static    store.Store
	dynamic   store.Store
	api       store.Store
	selector  *strategy.Selector
	executors map[strategy.Strategy]strategy.Executor
	fetcher   strategy.Fetcher
	queue     *syncqueue.Queue
	notifier  notify.Notifier
	events    eventing.Client
	passthru  http.Handler
	precache  []string
	fallback  string
	hold      bool
	log       logger.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	state     atomic.Int32
}

// New wires a Worker from options. No I/O happens until Install.
func New(opts Options) (*Worker, error) {
	if opts.Registry == nil {
		return nil, cerrors.New("worker: registry is required")
	}
	if opts.Version == "" {
		return nil, cerrors.New("worker: version is required")
	}
	if opts.Fetcher == nil {
		return nil, cerrors.New("worker: fetcher is required")
	}
	if opts.Passthrough == nil {
		return nil, cerrors.New("worker: passthrough handler is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewConsoleLogger()
	}
	if opts.Selector == nil {
		opts.Selector = strategy.NewDefaultSelector("/api/")
	}
	if opts.FallbackPath == "" {
		return nil, cerrors.New("worker: fallback path is required")
	}

	names := store.NamesFor(opts.Version)
	log := opts.Logger.WithPrefix("[worker]")

	w := &Worker{
		registry: opts.Registry,
		names:    names,
		static:   opts.Registry.Open(names.Static),
		dynamic:  opts.Registry.Open(names.Dynamic),
		api:      opts.Registry.Open(names.API),
		selector: opts.Selector,
		fetcher:  opts.Fetcher,
		notifier: opts.Notifier,
		events:   opts.Events,
		passthru: opts.Passthrough,
		precache: opts.Precache,
		fallback: opts.FallbackPath,
		hold:     opts.Hold,
		log:      log,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer("costs-hub-edge/worker"),
	}

	w.executors = map[strategy.Strategy]strategy.Executor{
		strategy.CacheFirst:           strategy.NewCacheFirst(w.static, w.fetcher, opts.Logger, opts.Metrics),
		strategy.NetworkFirst:         strategy.NewNetworkFirst(w.dynamic, w.static, w.fetcher, w.fallback, opts.Logger, opts.Metrics),
		strategy.StaleWhileRevalidate: strategy.NewStaleWhileRevalidate(w.api, w.fetcher, opts.Logger, opts.Metrics),
		strategy.NetworkOnly:          strategy.NewNetworkOnly(w.fetcher, opts.Logger, opts.Metrics),
	}

	w.queue = syncqueue.New(opts.Registry.Open(store.OfflineActions), w.fetcher, opts.QueuePolicy, opts.Logger, opts.Metrics)

	return w, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.log.Debug("lifecycle state: %s", s)
}

// Queue returns the offline action queue.
func (w *Worker) Queue() *syncqueue.Queue {
	return w.queue
}

// Names returns the current-version store names.
func (w *Worker) Names() store.Names {
	return w.names
}
