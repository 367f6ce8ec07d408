package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
)

// amqpDial is swapped out in tests.
var amqpDial = func(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

// AMQPBroker implements Broker over a single amqp091 connection. Each consumer
// gets its own channel; publishes share one channel guarded by a mutex, since
// amqp091 channels are not safe for concurrent publishing.
type AMQPBroker struct {
	conn   *amqp.Connection
	logger loggingpkg.ServiceLogger

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// Dial connects to the broker, retrying with exponential backoff until the
// configured timeout elapses.
func Dial(ctx context.Context, cfg DialConfig, logger loggingpkg.ServiceLogger) (*AMQPBroker, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.Timeout

	var conn *amqp.Connection
	operation := func() error {
		var err error
		conn, err = amqpDial(cfg.URL)
		if err != nil {
			logger.Warn("Broker connection attempt failed", loggingpkg.LogFields{"error": err.Error()})
		}
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	return &AMQPBroker{conn: conn, logger: logger, pubCh: pubCh}, nil
}

// Consume opens a dedicated channel for the binding, applies QoS, declares and
// binds the queue, and adapts the amqp091 delivery stream.
func (b *AMQPBroker) Consume(ctx context.Context, binding QueueBinding) (<-chan Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if err := ch.Qos(binding.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	queue := binding.QueueName()
	if _, err := ch.QueueDeclare(queue, binding.Durable, binding.AutoDelete, false, false, amqp.Table(binding.Args)); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}

	// The default exchange routes by queue name and must not be bound to.
	if binding.Exchange != "" {
		if err := ch.QueueBind(queue, binding.RoutingKey, binding.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to bind queue %q to exchange %q: %w", queue, binding.Exchange, err)
		}
	}

	inbound, err := ch.Consume(queue, binding.RoutingKey, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to start consumer on queue %q: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer func() {
			if err := ch.Cancel(binding.RoutingKey, false); err != nil {
				b.logger.Warn("Failed to cancel consumer", loggingpkg.LogFields{
					"queue": queue,
					"error": err.Error(),
				})
			}
			_ = ch.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-inbound:
				if !ok {
					return
				}
				out <- fromAMQPDelivery(raw)
			}
		}
	}()

	return out, nil
}

// Publish hands the reply to the broker on the default exchange, addressed by
// the reply-to queue name.
func (b *AMQPBroker) Publish(ctx context.Context, reply Reply) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	return b.pubCh.PublishWithContext(ctx, "", reply.RoutingKey, false, false, amqp.Publishing{
		ContentType:   ContentTypeProtobuf,
		CorrelationId: reply.CorrelationID,
		Headers:       amqp.Table(reply.Headers),
		Body:          reply.Payload,
	})
}

// Close tears down the connection, which closes all channels with it.
func (b *AMQPBroker) Close() error {
	return b.conn.Close()
}

func fromAMQPDelivery(raw amqp.Delivery) Delivery {
	return Delivery{
		Payload:       raw.Body,
		RoutingKey:    raw.RoutingKey,
		CorrelationID: raw.CorrelationId,
		ReplyTo:       raw.ReplyTo,
		AppID:         raw.AppId,
		Headers:       map[string]any(raw.Headers),
		Redelivered:   raw.Redelivered,
		Acker:         amqpAcker{delivery: raw},
	}
}

type amqpAcker struct {
	delivery amqp.Delivery
}

func (a amqpAcker) Ack() error {
	return a.delivery.Ack(false)
}

func (a amqpAcker) Reject(requeue bool) error {
	return a.delivery.Reject(requeue)
}
