package eventing

import (
	"context"
	"sync"
)

// memoryClient is an in-process event bus for tests and single-instance
// deployments without Redis. Callbacks run synchronously on the publisher's
// goroutine.
type memoryClient struct {
	mutex sync.Mutex
	subs  map[string][]*memorySubscriber
	next  int
}

var _ Client = (*memoryClient)(nil)

type memorySubscriber struct {
	client  *memoryClient
	subject string
	id      int
	cb      MessageCallback
}

func (s *memorySubscriber) Close() error {
	s.client.mutex.Lock()
	defer s.client.mutex.Unlock()
	subs := s.client.subs[s.subject]
	for i, sub := range subs {
		if sub.id == s.id {
			s.client.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

// NewMemory returns an in-process Client.
func NewMemory() Client {
	return &memoryClient{subs: make(map[string][]*memorySubscriber)}
}

func (c *memoryClient) Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error {
	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}
	c.mutex.Lock()
	subs := make([]*memorySubscriber, len(c.subs[subject]))
	copy(subs, c.subs[subject])
	c.mutex.Unlock()
	for _, sub := range subs {
		sub.cb(ctx, &message{subject: subject, data: data, headers: options.headers})
	}
	return nil
}

func (c *memoryClient) Subscribe(_ context.Context, subject string, cb MessageCallback) (Subscriber, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.next++
	sub := &memorySubscriber{client: c, subject: subject, id: c.next, cb: cb}
	c.subs[subject] = append(c.subs[subject], sub)
	return sub, nil
}

func (c *memoryClient) Close() error {
	return nil
}
