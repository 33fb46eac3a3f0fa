package messaging

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts a go-redis client to RedisClient.
type GoRedisClient struct {
	client redis.UniversalClient
	pubsub *redis.PubSub
}

// NewGoRedisClient wraps client. Closing the adapter closes only the
// subscription; the client belongs to the caller.
func NewGoRedisClient(client redis.UniversalClient) *GoRedisClient {
	return &GoRedisClient{client: client}
}

// Publish implements RedisClient.
func (c *GoRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// Subscribe implements RedisClient. The returned channel closes when ctx is
// cancelled or the subscription is closed.
func (c *GoRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	c.pubsub = c.client.Subscribe(ctx, channels...)
	if _, err := c.pubsub.Receive(ctx); err != nil {
		_ = c.pubsub.Close()
		return nil, err
	}

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		in := c.pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements RedisClient.
func (c *GoRedisClient) Close() error {
	if c.pubsub == nil {
		return nil
	}
	return c.pubsub.Close()
}
