package worker

import (
	"bytes"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/4Bfast/costs-hub-edge/strategy"
	"github.com/4Bfast/costs-hub-edge/syncqueue"
)

// mutationMethods are the methods captured into the offline action queue when
// the origin is unreachable.
var mutationMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// ServeHTTP is the fetch entry point. GET requests are routed through a
// strategy; mutations are forwarded to the origin and queued for replay when
// it is unreachable. Everything else, and all traffic before the worker is
// active, proceeds to the passthrough untouched. Cache keys are
// origin-relative (method + path?query) so they survive origin host changes.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if !w.intercepts(r) {
		w.passthru.ServeHTTP(rw, r)
		return
	}
	switch {
	case r.Method == http.MethodGet:
		w.serveGet(rw, r)
	case mutationMethods[r.Method]:
		w.serveMutation(rw, r)
	default:
		w.passthru.ServeHTTP(rw, r)
	}
}

func (w *Worker) serveGet(rw http.ResponseWriter, r *http.Request) {
	selected := w.selector.Select(r.URL)
	w.metrics.Request(selected.String())

	ctx, span := w.tracer.Start(r.Context(), "edge.fetch")
	span.SetAttributes(
		attribute.String("edge.strategy", selected.String()),
		attribute.String("http.target", r.URL.RequestURI()),
	)
	defer span.End()

	resp, err := w.executors[selected].Execute(ctx, r.WithContext(ctx))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		w.log.Error("executor failed for %s: %v", r.URL, err)
		resp = strategy.SyntheticOffline()
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	w.writeResponse(rw, r, resp)
}

// serveMutation forwards a mutation to the origin. The body is captured up
// front so a failed attempt can be queued for replay once connectivity
// returns; the caller gets 202 Accepted for a queued action.
func (w *Worker) serveMutation(rw http.ResponseWriter, r *http.Request) {
	action, err := syncqueue.Capture(r)
	if err != nil {
		w.log.Error("failed to read body for %s %s: %v", r.Method, r.URL, err)
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.RequestURI(), bytes.NewReader(action.Body))
	if err != nil {
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}
	out.Header = r.Header.Clone()

	resp, err := w.fetcher.Do(r.Context(), out)
	if err != nil {
		if qerr := w.queue.Enqueue(r.Context(), action); qerr != nil {
			w.log.Error("failed to queue offline action %s %s: %v", r.Method, r.URL, qerr)
			w.writeResponse(rw, r, strategy.SyntheticOffline())
			return
		}
		w.log.Info("origin unreachable, queued %s %s for replay", r.Method, r.URL)
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusAccepted)
		rw.Write([]byte(`{"queued":true}`))
		return
	}
	w.writeResponse(rw, r, resp)
}

func (w *Worker) writeResponse(rw http.ResponseWriter, r *http.Request, resp *http.Response) {
	defer resp.Body.Close()
	header := rw.Header()
	for k, v := range resp.Header {
		header[k] = v
	}
	rw.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(rw, resp.Body); err != nil {
		w.log.Debug("client went away while writing %s: %v", r.URL, err)
	}
}

// intercepts reports whether the fetch dispatcher handles this request.
func (w *Worker) intercepts(r *http.Request) bool {
	if w.State() != StateActive {
		return false
	}
	// Absolute-form URLs (proxy requests) must be same-scheme http(s);
	// origin-form requests always are.
	if r.URL.IsAbs() && r.URL.Scheme != "http" && r.URL.Scheme != "https" {
		return false
	}
	return true
}
