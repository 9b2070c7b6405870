// Package pubsub defines the opaque publish/subscribe interfaces the daemon
// depends on (spec §6). The messaging fabric, wire format and schema
// compiler are out of scope for this module; only the seam is specified
// here, so the fabric can be swapped without touching the core (spec §9
// design note).
package pubsub

import (
	"context"
	"time"
)

// Message is a single received pub/sub message: opaque payload bytes plus
// the monotonic log timestamp the fabric stamps every message with.
type Message struct {
	LogMonoTime time.Time
	Data        []byte
}

// Publisher publishes opaque byte payloads on a named channel.
type Publisher interface {
	Publish(channel string, payload []byte) error
}

// Subscriber receives messages from a named channel, blocking up to the
// given timeout. A zero Message and nil error indicates the timeout
// elapsed with nothing received; ctx cancellation (e.g. on shutdown)
// returns context.Canceled.
type Subscriber interface {
	Receive(ctx context.Context, channel string, timeout time.Duration) (Message, error)
}

// PubSub is the combined interface most components are handed.
type PubSub interface {
	Publisher
	Subscriber
}
