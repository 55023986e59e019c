package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBridge fans topics out through a Redis pub/sub channel so that every
// instance behind the load balancer signals its own subscribers.
type RedisBridge struct {
	client  *redis.Client
	channel string
}

func NewRedisBridge(client *redis.Client, channel string) *RedisBridge {
	return &RedisBridge{client: client, channel: channel}
}

func (b *RedisBridge) Publish(ctx context.Context, topic string) error {
	return b.client.Publish(ctx, b.channel, topic).Err()
}

// Listen confirms the subscription before returning and then delivers in the
// background until ctx is done.
func (b *RedisBridge) Listen(ctx context.Context, deliver func(topic string)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver(msg.Payload)
			}
		}
	}()
	return nil
}
