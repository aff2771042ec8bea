// Package broker defines the presence/fan-out interface (C9): delivering a
// host's outbound wire messages to every other host process sharing the
// same buffer, so a multi-process deployment behaves as one logical server.
// A single-process deployment uses localbroker, which needs no network hop
// at all; a multi-process deployment uses redisbroker's pub/sub channel.
package broker

import "context"

// Broker publishes byte-encoded protocol envelopes to a named channel and
// delivers them to every other subscriber of that channel. It does not
// interpret the payload; the buffer (C7) is the only caller and owns
// encoding/decoding via the protocol package.
type Broker interface {
	// Publish broadcasts msg to every subscriber of channel. A publisher
	// that also subscribes to the channel receives its own message; msg
	// carries no origin tag.
	Publish(ctx context.Context, channel string, msg []byte) error

	// Subscribe returns a channel of incoming messages for the given
	// channel name, plus a cleanup function the caller must invoke when
	// done listening. The returned channel is closed once cleanup runs.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}
