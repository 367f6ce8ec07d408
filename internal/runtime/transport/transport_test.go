package transport

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestQueueBindingQueueName(t *testing.T) {
	b := QueueBinding{RoutingKey: "user.get"}
	if b.QueueName() != "user.get" {
		t.Fatalf("expected the routing key as queue name, got %q", b.QueueName())
	}

	b.Queue = "users"
	if b.QueueName() != "users" {
		t.Fatalf("expected the explicit queue name, got %q", b.QueueName())
	}
}

func TestFromAMQPDelivery(t *testing.T) {
	raw := amqp.Delivery{
		Body:          []byte("payload"),
		RoutingKey:    "user.get",
		CorrelationId: "corr-1",
		ReplyTo:       "reply.queue",
		AppId:         "caller-service",
		Redelivered:   true,
		Headers:       amqp.Table{"req_id": "req-1"},
	}

	d := fromAMQPDelivery(raw)

	if string(d.Payload) != "payload" {
		t.Fatalf("unexpected payload %q", d.Payload)
	}
	if d.RoutingKey != "user.get" || d.CorrelationID != "corr-1" || d.ReplyTo != "reply.queue" {
		t.Fatalf("routing metadata lost: %+v", d)
	}
	if d.AppID != "caller-service" {
		t.Fatalf("unexpected app id %q", d.AppID)
	}
	if !d.Redelivered {
		t.Fatal("redelivered flag lost")
	}
	if d.Headers["req_id"] != "req-1" {
		t.Fatalf("headers lost: %v", d.Headers)
	}
	if d.Acker == nil {
		t.Fatal("expected an acker")
	}
}
