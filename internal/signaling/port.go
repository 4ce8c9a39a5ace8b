// Package signaling abstracts the duplex event channel a session coordinator
// speaks over. Events are at-most-once per registration, FIFO within one event
// name per connection, with no ordering guarantee across distinct event names.
package signaling

import (
	"context"
	"encoding/json"
)

// Handler receives the raw payload of one event occurrence.
type Handler func(payload json.RawMessage)

// Subscription is the handle returned by On. Cancel removes exactly the
// registration that created it, so a coordinator can detach its own handlers
// without disturbing other sessions sharing the same connection.
type Subscription interface {
	Cancel()
}

// Port is the duplex signaling channel. Concrete transports (websocket, NATS)
// are injected; connection lifetime and reconnect are owned by the transport,
// never by the consumer.
type Port interface {
	// Emit sends one event, fire and forget.
	Emit(event string, payload any) error

	// Request sends one event and waits for its ack payload.
	Request(ctx context.Context, event string, payload any) (json.RawMessage, error)

	// On registers a handler for an event name.
	On(event string, h Handler) Subscription
}
