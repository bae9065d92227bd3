package store

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

type redisRegistry struct {
	client *redis.Client
	cfg    config
}

var _ Registry = (*redisRegistry)(nil)

// NewRedis returns a Registry backed by Redis, for deployments where several
// edge instances share one cache. The caller owns the redis.Client lifecycle;
// Close is a no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) Registry {
	cfg := applyOptions(opts)
	if cfg.keyPrefix == "" {
		cfg.keyPrefix = "costshub"
	}
	return &redisRegistry{client: client, cfg: cfg}
}

func (r *redisRegistry) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.cfg.queryTimeout)
}

func (r *redisRegistry) storePrefix(name string) string {
	return r.cfg.keyPrefix + ":cache:" + name + ":"
}

func (r *redisRegistry) Open(name string) Store {
	return &redisStore{name: name, registry: r}
}

func (r *redisRegistry) List(ctx context.Context) ([]string, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	pattern := r.cfg.keyPrefix + ":cache:*"
	seen := make(map[string]bool)
	var names []string
	iter := r.client.Scan(qctx, 0, pattern, 0).Iterator()
	for iter.Next(qctx) {
		rest := strings.TrimPrefix(iter.Val(), r.cfg.keyPrefix+":cache:")
		name, _, ok := strings.Cut(rest, ":")
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (r *redisRegistry) Delete(ctx context.Context, name string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	iter := r.client.Scan(qctx, 0, r.storePrefix(name)+"*", 0).Iterator()
	var keys []string
	for iter.Next(qctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(qctx, keys...).Err()
}

func (r *redisRegistry) Close() error {
	return nil
}

type redisStore struct {
	name     string
	registry *redisRegistry
}

var _ Store = (*redisStore)(nil)

func (s *redisStore) Name() string {
	return s.name
}

func (s *redisStore) redisKey(key string) string {
	return s.registry.storePrefix(s.name) + HashKey(key)
}

func (s *redisStore) GetContext(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	data, err := s.registry.client.HGet(qctx, s.redisKey(key), "v").Bytes()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, data, nil
}

func (s *redisStore) SetContext(ctx context.Context, key string, payload []byte) error {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	return s.registry.client.HSet(qctx, s.redisKey(key), "k", key, "v", payload).Err()
}

func (s *redisStore) DeleteContext(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	n, err := s.registry.client.Del(qctx, s.redisKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) KeysContext(ctx context.Context) ([]string, error) {
	qctx, cancel := s.registry.queryCtx(ctx)
	defer cancel()
	iter := s.registry.client.Scan(qctx, 0, s.registry.storePrefix(s.name)+"*", 0).Iterator()
	var keys []string
	for iter.Next(qctx) {
		key, err := s.registry.client.HGet(qctx, iter.Val(), "k").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
