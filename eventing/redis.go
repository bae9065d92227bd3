package eventing

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/4Bfast/costs-hub-edge/logger"
)

type redisMsgPayload struct {
	InternalData    []byte  `msgpack:"data"`
	InternalHeaders Headers `msgpack:"headers"`
}

type redisSubscriber struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *redisSubscriber) Close() error {
	s.cancel()
	err := s.pubsub.Close()
	s.wg.Wait()
	return err
}

type redisEventingClient struct {
	rdb *redis.Client
	log logger.Logger
}

var _ Client = (*redisEventingClient)(nil)

// NewRedis returns a Client backed by Redis pub/sub. The caller owns the
// redis.Client lifecycle; Close does not close it.
func NewRedis(rdb *redis.Client, log logger.Logger) Client {
	return &redisEventingClient{rdb: rdb, log: log.WithPrefix("[eventing]")}
}

func (c *redisEventingClient) Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error {
	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}
	payload, err := msgpack.Marshal(redisMsgPayload{
		InternalData:    data,
		InternalHeaders: options.headers,
	})
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, subject, payload).Err()
}

func (c *redisEventingClient) Subscribe(ctx context.Context, subject string, cb MessageCallback) (Subscriber, error) {
	pubsub := c.rdb.Subscribe(ctx, subject)
	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscriber{pubsub: pubsub, cancel: cancel}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var payload redisMsgPayload
				if err := msgpack.Unmarshal([]byte(m.Payload), &payload); err != nil {
					c.log.Warn("dropping malformed message on %s: %v", subject, err)
					continue
				}
				cb(subCtx, &message{
					subject: m.Channel,
					data:    payload.InternalData,
					headers: payload.InternalHeaders,
				})
			}
		}
	}()
	return sub, nil
}

func (c *redisEventingClient) Close() error {
	return nil
}
