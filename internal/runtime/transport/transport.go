package transport

import (
	"context"
	"time"
)

// ContentTypeProtobuf is set on reply publishings, since reply payloads are
// encoded protobuf.
const ContentTypeProtobuf = "application/octet-stream"

// Acker settles a single delivery with the broker. Exactly one of Ack or
// Reject is expected per delivery.
type Acker interface {
	// Ack tells the broker the delivery was processed.
	Ack() error
	// Reject refuses the delivery. With requeue the broker redelivers it,
	// without requeue it is dropped (or dead-lettered if the queue is
	// configured for it).
	Reject(requeue bool) error
}

// Delivery is one inbound message pulled from the broker, together with the
// routing metadata the dispatch engine needs. It is immutable once received
// and owned by the dispatch unit processing it.
type Delivery struct {
	Payload       []byte
	RoutingKey    string
	CorrelationID string
	ReplyTo       string
	AppID         string
	Headers       map[string]any
	Redelivered   bool

	Acker Acker
}

// QueueBinding describes the queue a consumer reads from and how it is bound.
type QueueBinding struct {
	// Queue is the queue name. Empty means "use the routing key".
	Queue string
	// Exchange the queue is bound to. The empty string is the AMQP default
	// exchange, which needs no explicit binding.
	Exchange string
	// RoutingKey the binding uses, and the consumer tag.
	RoutingKey string
	// Prefetch is the per-consumer unacked message cap.
	Prefetch int
	// Queue declaration properties.
	Durable    bool
	AutoDelete bool
	// Args are the queue x-arguments (TTL, dead lettering, expiry, ...).
	Args map[string]any
}

// QueueName resolves the effective queue name for the binding.
func (b QueueBinding) QueueName() string {
	if b.Queue != "" {
		return b.Queue
	}
	return b.RoutingKey
}

// Reply is an outbound response envelope addressed back to the caller.
type Reply struct {
	// RoutingKey is the reply-to address from the original delivery. Replies
	// are published on the default exchange, which routes directly to the
	// queue of that name.
	RoutingKey string
	// CorrelationID matches the reply to the caller's request.
	CorrelationID string
	// Headers propagated onto the reply, e.g. the request id.
	Headers map[string]any
	// Payload is the encoded response envelope.
	Payload []byte
}

// Broker is the connection collaborator the dispatch engine consumes: it
// yields raw deliveries and accepts reply publishes. Publish must be safe for
// concurrent use by multiple dispatch units.
type Broker interface {
	// Consume declares and binds the queue for the binding and starts
	// delivering messages on the returned channel. The channel is closed when
	// ctx is cancelled or the underlying consumer terminates.
	Consume(ctx context.Context, binding QueueBinding) (<-chan Delivery, error)
	// Publish hands a reply to the broker.
	Publish(ctx context.Context, reply Reply) error
	// Close tears down the connection.
	Close() error
}

// DialConfig carries the settings Dial needs from the app configuration.
type DialConfig struct {
	URL     string
	Timeout time.Duration
}
