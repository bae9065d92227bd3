package store

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

type sqliteRegistry struct {
	db  *sql.DB
	cfg config
}

var _ Registry = (*sqliteRegistry)(nil)

// NewSQLite returns a Registry backed by SQLite. If dbPath is empty or
// ":memory:", an in-memory database is used. Entries persist across process
// restarts when a file path is given.
func NewSQLite(dbPath string, opts ...Option) (Registry, error) {
	cfg := applyOptions(opts)
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL mode for better concurrent performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		store TEXT NOT NULL,
		key TEXT NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (store, key)
	)`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_store ON cache(store)`); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteRegistry{db: db, cfg: cfg}, nil
}

func (r *sqliteRegistry) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.cfg.queryTimeout)
}

func (r *sqliteRegistry) Open(name string) Store {
	return &sqliteStore{name: name, registry: r}
}

func (r *sqliteRegistry) List(ctx context.Context) ([]string, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	rows, err := r.db.QueryContext(qctx, `SELECT DISTINCT store FROM cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *sqliteRegistry) Delete(ctx context.Context, name string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	_, err := r.db.ExecContext(qctx, `DELETE FROM cache WHERE store = ?`, name)
	return err
}

func (r *sqliteRegistry) Close() error {
	return r.db.Close()
}

type sqliteStore struct {
	name     string
	registry *sqliteRegistry
}

var _ Store = (*sqliteStore)(nil)

func (s *sqliteStore) Name() string {
	return s.name
}

func (s *sqliteStore) GetContext(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	var payload []byte
	err := s.registry.db.QueryRowContext(qctx,
		`SELECT payload FROM cache WHERE store = ? AND key = ?`, s.name, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, payload, nil
}

func (s *sqliteStore) SetContext(ctx context.Context, key string, payload []byte) error {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	_, err := s.registry.db.ExecContext(qctx,
		`INSERT INTO cache (store, key, payload) VALUES (?, ?, ?)
		 ON CONFLICT (store, key) DO UPDATE SET payload = excluded.payload`,
		s.name, key, payload)
	return err
}

func (s *sqliteStore) DeleteContext(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	res, err := s.registry.db.ExecContext(qctx,
		`DELETE FROM cache WHERE store = ? AND key = ?`, s.name, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) KeysContext(ctx context.Context) ([]string, error) {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	rows, err := s.registry.db.QueryContext(qctx,
		`SELECT key FROM cache WHERE store = ?`, s.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
