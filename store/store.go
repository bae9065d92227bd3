package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is a named key-value mapping of request keys to serialized payloads.
// Writes overwrite: at most one payload exists per key. A store materializes
// lazily on its first write; reading from a store that was never written to
// behaves like reading from an empty one.
type Store interface {
	// Name returns the store's full versioned name.
	Name() string
	// GetContext retrieves the payload for a key.
	GetContext(ctx context.Context, key string) (bool, []byte, error)
	// SetContext stores a payload for a key, overwriting any prior payload.
	SetContext(ctx context.Context, key string, payload []byte) error
	// DeleteContext removes a key. Returns true if the key existed.
	DeleteContext(ctx context.Context, key string) (bool, error)
	// KeysContext lists all keys currently present in the store.
	KeysContext(ctx context.Context) ([]string, error)
}

// Registry manages the full set of named stores inside one backend so that
// stale versions can be enumerated and garbage collected.
type Registry interface {
	// Open returns a handle to the named store, creating nothing until the
	// first write.
	Open(name string) Store
	// List returns the names of all stores that have been materialized.
	List(ctx context.Context) ([]string, error)
	// Delete removes a store and all of its keys.
	Delete(ctx context.Context, name string) error
	// Close shuts down the backend.
	Close() error
}

// Key returns the canonical cache key for a request: method and URL.
func Key(method, url string) string {
	return method + " " + url
}

// HashKey returns a compact fixed-width digest of a cache key, used by
// backends that prefer short keys (Redis, SQLite indexes).
func HashKey(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// Get retrieves a typed value from the store, deserializing via msgpack.
func Get[T any](ctx context.Context, s Store, key string) (bool, T, error) {
	var zero T
	found, data, err := s.GetContext(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	var result T
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return false, zero, fmt.Errorf("store: failed to unmarshal value: %w", err)
	}
	return true, result, nil
}

// Set serializes a typed value via msgpack and stores it.
func Set[T any](ctx context.Context, s Store, key string, val T) error {
	data, err := msgpack.Marshal(val)
	if err != nil {
		return fmt.Errorf("store: failed to marshal value: %w", err)
	}
	return s.SetContext(ctx, key, data)
}

// DefaultQueryTimeout is the per-operation timeout for backends that perform
// I/O (SQLite, Redis). Prevents indefinite hangs on slow or unresponsive
// storage.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	queryTimeout time.Duration
	keyPrefix    string
}

// Option configures a Registry implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed registries
// (SQLite, Redis). Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithKeyPrefix sets the backend key prefix for namespacing. Applies to the
// Redis registry. Defaults to "costshub".
func WithKeyPrefix(p string) Option {
	return func(c *config) { c.keyPrefix = p }
}
