// Package eventing carries the edge's control-plane messages: skip-waiting
// and cache-priming commands from the application, sync triggers, and push
// notification payloads.
package eventing

import (
	"context"
)

// Message represents a message received from the event system
type Message interface {
	Subject() string
	Data() []byte
	Headers() Headers
}

// Headers represents message headers
type Headers map[string]string

func (h Headers) Get(key string) string {
	return h[key]
}

func (h Headers) Set(key string, value string) {
	h[key] = value
}

type MessageCallback func(ctx context.Context, msg Message)

type Subscriber interface {
	// Close stops the subscriber
	Close() error
}

type PublishOption func(*publishOptions)

type publishOptions struct {
	headers Headers
}

func WithHeader(key, value string) PublishOption {
	return func(o *publishOptions) {
		if o.headers == nil {
			o.headers = make(Headers)
		}
		o.headers[key] = value
	}
}

// Client defines the interface for event clients
type Client interface {
	// Publish publishes a message to a subject
	Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error
	// Subscribe subscribes to a subject
	Subscribe(ctx context.Context, subject string, cb MessageCallback) (Subscriber, error)
	// Close shuts down the client
	Close() error
}

type message struct {
	subject string
	data    []byte
	headers Headers
}

func (m *message) Subject() string {
	return m.subject
}

func (m *message) Data() []byte {
	return m.data
}

func (m *message) Headers() Headers {
	if m.headers == nil {
		return Headers{}
	}
	return m.headers
}
