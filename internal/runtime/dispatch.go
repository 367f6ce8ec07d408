package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	extractpkg "github.com/issuu/kanin/internal/runtime/extract"
	idspkg "github.com/issuu/kanin/internal/runtime/ids"
	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
	telemetrypkg "github.com/issuu/kanin/internal/runtime/telemetry"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
	wirepkg "github.com/issuu/kanin/internal/runtime/wire"
)

const tracerName = "kanin-dispatch"

// dispatch runs one delivery through its full lifecycle: resolve the handler,
// extract and invoke, encode the reply, publish it, and settle the delivery
// with the broker. The delivery is acked only after the publish attempt
// resolves, so a crash in between redelivers rather than loses the request.
func (a *App) dispatch(ctx context.Context, d transportpkg.Delivery) {
	start := time.Now()
	a.recorder.RequestReceived(d.RoutingKey)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "HandleRequest",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.routing_key", d.RoutingKey),
	)

	desc, ok := a.router.resolve(d.RoutingKey)
	if !ok {
		a.dropUnroutable(ctx, d, span, start)
		return
	}

	req := extractpkg.NewRequest(&d, a.state, a.Logger.With(loggingpkg.LogFields{"routing_key": d.RoutingKey}))
	log := req.Logger()
	span.SetAttributes(attribute.String("request.id", req.ReqID()))

	received := loggingpkg.LogFields{}
	if d.AppID != "" {
		received["app_id"] = d.AppID
	}
	log.Debug("Received request", received)

	out := a.invoke(ctx, desc, req)

	outcome := telemetrypkg.OutcomeSuccess
	if out.err != nil {
		if out.extraction {
			a.recorder.ExtractionFailed(d.RoutingKey)
		} else {
			a.recorder.HandlerFailed(d.RoutingKey)
		}
		switch out.err.Kind() {
		case errspkg.KindInvalidRequest:
			outcome = telemetrypkg.OutcomeInvalidRequest
			log.Warn("Handler rejected request", loggingpkg.LogFields{"error": out.err.Error()})
		default:
			outcome = telemetrypkg.OutcomeInternalError
			log.Error("Handler failed", out.err, loggingpkg.LogFields{"source": out.err.Source()})
			span.RecordError(out.err)
			span.SetStatus(codes.Error, "handler failed")
		}
	}

	if desc.noReply || d.ReplyTo == "" {
		if !desc.noReply && out.reply != nil {
			log.Warn("Discarding response for delivery without reply address", nil)
		}
		a.ack(d, log)
		a.complete(span, d.RoutingKey, outcome, start)
		return
	}

	reply := out.reply
	if out.err != nil {
		env, err := desc.errorEnvelope(out.err)
		if err != nil {
			log.Error("Failed to build error response", err, nil)
			env = fallbackEnvelope(out.err)
		}
		reply = env
	}

	payload, err := proto.Marshal(reply)
	if err != nil {
		log.Error("Failed to encode response", err, nil)
		outcome = telemetrypkg.OutcomeInternalError
		payload, _ = proto.Marshal(wirepkg.NewInternalError(desc.routingKey, "internal server error"))
	}

	if d.CorrelationID == "" {
		log.Warn("Reply has no correlation id", loggingpkg.LogFields{"reply_to": d.ReplyTo})
	}

	if err := a.publishReply(ctx, d, payload, req.ReqID()); err != nil {
		a.failDelivery(d, log, span, start, err)
		return
	}

	a.ack(d, log)
	a.complete(span, d.RoutingKey, outcome, start)
}

// invoke runs extraction and the handler body, converting panics into
// internal errors so one bad delivery cannot take the consumer down.
func (a *App) invoke(ctx context.Context, desc *handlerDescriptor, req *extractpkg.Request) (out invocation) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panicked: %v", r)
			req.Logger().Error("Handler panicked", err, nil)
			out = invocation{err: errspkg.NewInternal(desc.routingKey, err)}
		}
	}()

	out = desc.handler.invoke(ctx, req)
	if out.err != nil {
		out.err = out.err.WithSource(desc.routingKey)
	}
	return out
}

// dropUnroutable handles a delivery whose routing key has no handler: reply
// with an internal error if the caller expects one, then reject without
// requeue so the delivery does not loop forever.
func (a *App) dropUnroutable(ctx context.Context, d transportpkg.Delivery, span trace.Span, start time.Time) {
	log := a.Logger.With(loggingpkg.LogFields{"routing_key": d.RoutingKey})
	log.Error("No handler registered for routing key", nil, nil)

	if d.ReplyTo != "" {
		env := wirepkg.NewInternalError("router",
			fmt.Sprintf("no handler registered for routing key %q", d.RoutingKey))
		payload, err := proto.Marshal(env)
		if err == nil {
			if err := a.publishReply(ctx, d, payload, idspkg.RequestIDFromHeaders(d.Headers)); err != nil {
				log.Warn("Failed to reply to unroutable delivery", loggingpkg.LogFields{"error": err.Error()})
			}
		}
	}

	if err := d.Acker.Reject(false); err != nil {
		log.Error("Failed to reject delivery", err, nil)
	}
	span.SetStatus(codes.Error, "no handler for routing key")
	a.complete(span, d.RoutingKey, telemetrypkg.OutcomeDropped, start)
}

// publishReply hands the encoded reply to the broker, retrying transient
// failures with exponential backoff within the configured bounds.
func (a *App) publishReply(ctx context.Context, d transportpkg.Delivery, payload []byte, reqID string) error {
	reply := transportpkg.Reply{
		RoutingKey:    d.ReplyTo,
		CorrelationID: d.CorrelationID,
		Headers:       map[string]any{idspkg.HeaderReqID: reqID},
		Payload:       payload,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.Conf.ReplyRetryInitialInterval
	policy.MaxInterval = a.Conf.ReplyRetryMaxInterval

	attempt := 0
	op := func() error {
		attempt++
		err := a.broker.Publish(ctx, reply)
		if err != nil {
			a.Logger.Warn("Reply publish attempt failed", loggingpkg.LogFields{
				"reply_to": d.ReplyTo,
				"attempt":  attempt,
				"error":    err.Error(),
			})
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(a.Conf.ReplyRetryMaxRetries)), ctx))
}

// failDelivery settles a delivery whose reply could not be published. A fresh
// delivery is requeued for one more attempt; a redelivered one is dropped, so
// a broken reply queue cannot produce an endless redelivery loop.
func (a *App) failDelivery(d transportpkg.Delivery, log loggingpkg.ServiceLogger, span trace.Span, start time.Time, cause error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "reply publish failed")

	if !a.Conf.DisableRequeueOnPublishFailure && !d.Redelivered {
		log.Warn("Requeueing delivery after reply publish failure", loggingpkg.LogFields{"error": cause.Error()})
		if err := d.Acker.Reject(true); err != nil {
			log.Error("Failed to requeue delivery", err, nil)
		}
		a.complete(span, d.RoutingKey, telemetrypkg.OutcomeRequeued, start)
		return
	}

	log.Error("Dropping delivery after reply publish failure", cause, nil)
	if err := d.Acker.Reject(false); err != nil {
		log.Error("Failed to reject delivery", err, nil)
	}
	a.complete(span, d.RoutingKey, telemetrypkg.OutcomeDropped, start)
}

func (a *App) ack(d transportpkg.Delivery, log loggingpkg.ServiceLogger) {
	if err := d.Acker.Ack(); err != nil {
		log.Error("Failed to ack delivery", err, nil)
	}
}

func (a *App) complete(span trace.Span, routingKey string, outcome telemetrypkg.Outcome, start time.Time) {
	span.SetAttributes(attribute.String("dispatch.outcome", string(outcome)))
	a.recorder.RequestCompleted(routingKey, outcome, time.Since(start))
}

// fallbackEnvelope is used when the handler's own envelope cannot carry the
// error, e.g. the default mapping found no matching field.
func fallbackEnvelope(herr *errspkg.HandlerError) proto.Message {
	if herr.Kind() == errspkg.KindInvalidRequest {
		return wirepkg.NewInvalidRequest(herr.WireMessage())
	}
	return wirepkg.NewInternalError(herr.Source(), herr.WireMessage())
}
