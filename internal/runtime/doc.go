/*
Package runtime implements the request dispatch engine behind the public
kanin API.

# Architecture Overview

An App owns one consumer loop per registered handler. Each loop reads raw
deliveries from its queue and hands every delivery to a dispatch unit running
on its own goroutine, so concurrency per handler is bounded only by the queue
prefetch.

A dispatch unit walks one delivery through its lifecycle:

  - resolve the routing key against the routing table (router.go)
  - build the request context and run the handler's extractors left to right
    (handler.go, internal/runtime/extract)
  - invoke the handler body, converting errors and panics into the protocol's
    invalid_request / internal_error outcomes
  - encode the reply envelope and publish it to the caller's reply-to queue
    with the original correlation id, retrying transient publish failures
  - settle the delivery: ack after the publish resolves, requeue at most once
    when the reply could not be handed to the broker, reject without requeue
    for unroutable deliveries

Queue declaration and binding details live in queue.go; the AMQP specifics are
behind the transport.Broker interface so tests can run against an in-memory
broker.
*/
package runtime
