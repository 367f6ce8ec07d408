package runtime

import (
	"time"

	configpkg "github.com/issuu/kanin/internal/runtime/config"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
)

// QueueConfig controls how the queue backing a handler is declared and
// consumed. NewQueueConfig returns the defaults: an auto-deleted,
// non-durable queue named after the routing key, bound on the app exchange
// with the app prefetch. The With methods return modified copies, so configs
// can be shared and specialized per handler.
type QueueConfig struct {
	queue       string
	exchange    string
	exchangeSet bool
	prefetch    int
	durable     bool
	autoDelete  bool
	args        map[string]any
}

// NewQueueConfig returns the default queue configuration.
func NewQueueConfig() QueueConfig {
	return QueueConfig{autoDelete: true}
}

// WithQueue names the queue explicitly instead of reusing the routing key.
func (c QueueConfig) WithQueue(name string) QueueConfig {
	c.queue = name
	return c
}

// WithExchange binds the queue on the given exchange instead of the app
// default. The empty string selects the AMQP default exchange, which routes
// by queue name and needs no binding.
func (c QueueConfig) WithExchange(exchange string) QueueConfig {
	c.exchange = exchange
	c.exchangeSet = true
	return c
}

// WithPrefetch caps the number of unacked deliveries outstanding on this
// handler's channel, overriding the app prefetch.
func (c QueueConfig) WithPrefetch(n int) QueueConfig {
	c.prefetch = n
	return c
}

// WithDurable makes the queue survive broker restarts.
func (c QueueConfig) WithDurable(durable bool) QueueConfig {
	c.durable = durable
	return c
}

// WithAutoDelete controls whether the queue is deleted once its last consumer
// disconnects. On by default.
func (c QueueConfig) WithAutoDelete(autoDelete bool) QueueConfig {
	c.autoDelete = autoDelete
	return c
}

// WithMessageTTL discards messages that sit in the queue longer than ttl.
func (c QueueConfig) WithMessageTTL(ttl time.Duration) QueueConfig {
	return c.WithArg("x-message-ttl", ttl.Milliseconds())
}

// WithExpires deletes the queue itself after it has been unused for d.
func (c QueueConfig) WithExpires(d time.Duration) QueueConfig {
	return c.WithArg("x-expires", d.Milliseconds())
}

// WithDeadLetterExchange routes rejected messages to the named exchange.
func (c QueueConfig) WithDeadLetterExchange(exchange string) QueueConfig {
	return c.WithArg("x-dead-letter-exchange", exchange)
}

// WithDeadLetterRoutingKey overrides the routing key dead-lettered messages
// are republished with.
func (c QueueConfig) WithDeadLetterRoutingKey(routingKey string) QueueConfig {
	return c.WithArg("x-dead-letter-routing-key", routingKey)
}

// WithArg sets a raw queue x-argument.
func (c QueueConfig) WithArg(key string, value any) QueueConfig {
	args := make(map[string]any, len(c.args)+1)
	for k, v := range c.args {
		args[k] = v
	}
	args[key] = value
	c.args = args
	return c
}

// binding resolves the effective queue binding for a routing key, falling
// back to the app configuration for settings left at their zero value.
func (c QueueConfig) binding(routingKey string, conf configpkg.Config) transportpkg.QueueBinding {
	exchange := conf.Exchange
	if c.exchangeSet {
		exchange = c.exchange
	}
	prefetch := c.prefetch
	if prefetch <= 0 {
		prefetch = conf.Prefetch
	}
	return transportpkg.QueueBinding{
		Queue:      c.queue,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Prefetch:   prefetch,
		Durable:    c.durable,
		AutoDelete: c.autoDelete,
		Args:       c.args,
	}
}
