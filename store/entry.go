package store

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entry is a captured HTTP response suitable for persistence. Only a bounded
// subset of headers is retained; hop-by-hop and connection-level headers are
// dropped.
type Entry struct {
	Status   int                 `msgpack:"status"`
	Header   map[string][]string `msgpack:"header"`
	Body     []byte              `msgpack:"body"`
	URL      string              `msgpack:"url"`
	StoredAt time.Time           `msgpack:"stored_at"`
}

var skipHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Set-Cookie":        true,
}

// NewEntry captures a response into an Entry, consuming the response body.
// The caller must not read resp.Body afterwards.
func NewEntry(resp *http.Response) (Entry, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("store: failed to read response body: %w", err)
	}
	header := make(map[string][]string, len(resp.Header))
	for k, v := range resp.Header {
		if skipHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		header[k] = v
	}
	var url string
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}
	return Entry{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		URL:      url,
		StoredAt: time.Now(),
	}, nil
}

// Response materializes the entry back into an *http.Response.
func (e Entry) Response() *http.Response {
	header := make(http.Header, len(e.Header)+1)
	for k, v := range e.Header {
		header[http.CanonicalHeaderKey(k)] = v
	}
	header.Set("X-Cache", "HIT")
	return &http.Response{
		StatusCode:    e.Status,
		Status:        http.StatusText(e.Status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
	}
}

// Cacheable reports whether a response status should be written to a store.
// Only 2xx-class responses are persisted.
func Cacheable(status int) bool {
	return status >= 200 && status < 300
}
