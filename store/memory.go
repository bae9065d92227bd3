package store

import (
	"context"
	"sync"
)

type memoryRegistry struct {
	mutex  sync.Mutex
	stores map[string]map[string][]byte
}

var _ Registry = (*memoryRegistry)(nil)

// NewMemory returns an in-memory Registry. Contents do not survive a restart;
// intended for tests and single-instance deployments where persistence is not
// required.
func NewMemory() Registry {
	return &memoryRegistry{stores: make(map[string]map[string][]byte)}
}

func (r *memoryRegistry) Open(name string) Store {
	return &memoryStore{name: name, registry: r}
}

func (r *memoryRegistry) List(_ context.Context) ([]string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	return names, nil
}

func (r *memoryRegistry) Delete(_ context.Context, name string) error {
	r.mutex.Lock()
	delete(r.stores, name)
	r.mutex.Unlock()
	return nil
}

func (r *memoryRegistry) Close() error {
	return nil
}

type memoryStore struct {
	name     string
	registry *memoryRegistry
}

var _ Store = (*memoryStore)(nil)

func (s *memoryStore) Name() string {
	return s.name
}

func (s *memoryStore) GetContext(_ context.Context, key string) (bool, []byte, error) {
	s.registry.mutex.Lock()
	defer s.registry.mutex.Unlock()
	bucket, ok := s.registry.stores[s.name]
	if !ok {
		return false, nil, nil
	}
	payload, ok := bucket[key]
	if !ok {
		return false, nil, nil
	}
	return true, payload, nil
}

func (s *memoryStore) SetContext(_ context.Context, key string, payload []byte) error {
	s.registry.mutex.Lock()
	defer s.registry.mutex.Unlock()
	bucket, ok := s.registry.stores[s.name]
	if !ok {
		bucket = make(map[string][]byte)
		s.registry.stores[s.name] = bucket
	}
	bucket[key] = payload
	return nil
}

func (s *memoryStore) DeleteContext(_ context.Context, key string) (bool, error) {
	s.registry.mutex.Lock()
	defer s.registry.mutex.Unlock()
	bucket, ok := s.registry.stores[s.name]
	if !ok {
		return false, nil
	}
	_, ok = bucket[key]
	if ok {
		delete(bucket, key)
	}
	return ok, nil
}

func (s *memoryStore) KeysContext(_ context.Context) ([]string, error) {
	s.registry.mutex.Lock()
	defer s.registry.mutex.Unlock()
	bucket, ok := s.registry.stores[s.name]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	return keys, nil
}
