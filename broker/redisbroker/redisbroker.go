// Package redisbroker implements broker.Broker over Redis pub/sub, grounded
// on sumanthd032-CollabText's use of github.com/redis/go-redis/v9 (its
// server/main.go dials redis.NewClient(&redis.Options{Addr: ...}) against a
// REDIS_ADDR-configured address), letting several goateed processes share
// one logical buffer.
package redisbroker

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Broker publishes and subscribes using a shared *redis.Client.
type Broker struct {
	client *redis.Client
}

// New wraps an existing Redis client. The caller owns the client's
// lifecycle (construction from a REDIS_ADDR-style config, and Close).
func New(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func (b *Broker) Publish(ctx context.Context, channel string, msg []byte) error {
	return b.client.Publish(ctx, channel, msg).Err()
}

func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	redisMsgs := pubsub.Channel()
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case m, ok := <-redisMsgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	cleanup := func() {
		close(done)
		pubsub.Close()
	}
	return out, cleanup, nil
}
