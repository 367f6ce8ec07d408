package extract

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
)

// Arg is the extraction capability: given the request context, either produce
// a value of type T or fail with a handler error. A handler's argument list is
// built by evaluating its declared Args strictly left to right; the first
// failure short-circuits the rest, and the handler body is never invoked.
//
// Args receive the request context and may perform I/O of their own.
type Arg[T any] func(ctx context.Context, r *Request) (T, *errspkg.HandlerError)

// Proto extracts the delivery payload decoded as the protobuf message T. The
// decoded value is also stored in the request context, so later extractors can
// retrieve it with Stored. Malformed payloads fail as invalid requests.
func Proto[T proto.Message]() Arg[T] {
	return func(ctx context.Context, r *Request) (T, *errspkg.HandlerError) {
		msg, err := NewMessage[T]()
		if err != nil {
			var zero T
			return zero, errspkg.NewInternal("extract", err)
		}
		if err := proto.Unmarshal(r.delivery.Payload, msg); err != nil {
			var zero T
			return zero, errspkg.NewInvalidRequest(fmt.Errorf("message could not be decoded into %s: %w", proto.MessageName(msg), err))
		}
		putIfAbsent(r, msg)
		return msg, nil
	}
}

// ProtoInto extracts the payload decoded into a fresh copy of the prototype.
// Use this instead of Proto for message types that cannot be constructed from
// their Go type alone, such as dynamic messages.
func ProtoInto(prototype proto.Message) Arg[proto.Message] {
	return func(ctx context.Context, r *Request) (proto.Message, *errspkg.HandlerError) {
		msg := clonePrototype(prototype)
		if err := proto.Unmarshal(r.delivery.Payload, msg); err != nil {
			return nil, errspkg.NewInvalidRequest(fmt.Errorf("message could not be decoded into %s: %w", proto.MessageName(msg), err))
		}
		return msg, nil
	}
}

// Delivery extracts the delivery's routing metadata, for handlers that need
// the routing key or the reply address. The extracted view carries no Acker:
// settlement stays with the framework, which acks or rejects the delivery
// after the handler returns.
func Delivery() Arg[*transportpkg.Delivery] {
	return func(ctx context.Context, r *Request) (*transportpkg.Delivery, *errspkg.HandlerError) {
		view := *r.delivery
		view.Acker = nil
		return &view, nil
	}
}

// Raw extracts the payload bytes without decoding.
func Raw() Arg[[]byte] {
	return func(ctx context.Context, r *Request) ([]byte, *errspkg.HandlerError) {
		return r.delivery.Payload, nil
	}
}

// Header extracts a required header as a string. It fails as an invalid
// request if the header is absent or not string-shaped.
func Header(key string) Arg[string] {
	return func(ctx context.Context, r *Request) (string, *errspkg.HandlerError) {
		raw, ok := r.Header(key)
		if !ok {
			return "", errspkg.NewInvalidRequest(fmt.Errorf("missing required header %q", key))
		}
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return "", errspkg.NewInvalidRequest(fmt.Errorf("header %q has unexpected type %T", key, raw))
		}
	}
}

// ReqID extracts the request id.
func ReqID() Arg[RequestID] {
	return func(ctx context.Context, r *Request) (RequestID, *errspkg.HandlerError) {
		return r.reqID, nil
	}
}

// State extracts a value of type T from the app state. Extraction fails as an
// internal error when no value of that type was added to the app; that is a
// configuration bug on the server side, not a client mistake.
func State[T any]() Arg[T] {
	return func(ctx context.Context, r *Request) (T, *errspkg.HandlerError) {
		v, ok := StateOf[T](r.state)
		if !ok {
			var zero T
			return zero, errspkg.NewInternal("state", fmt.Errorf("state of type %s has not been added to the app", typeKey[T]()))
		}
		return v, nil
	}
}

// Stored extracts a value of type T previously stored in the request context,
// either by an earlier extractor or by the framework itself (e.g. RequestID).
func Stored[T any]() Arg[T] {
	return func(ctx context.Context, r *Request) (T, *errspkg.HandlerError) {
		v, ok := Get[T](r)
		if !ok {
			var zero T
			return zero, errspkg.NewInternal("extract", fmt.Errorf("no value of type %s has been stored in the request", typeKey[T]()))
		}
		return v, nil
	}
}

// NewMessage constructs a fresh instance of the message type T. T is normally
// a pointer to a generated message struct.
func NewMessage[T proto.Message]() (T, error) {
	var zero T
	if !isNilProto(zero) {
		cloned := proto.Clone(zero)
		proto.Reset(cloned)
		typed, ok := cloned.(T)
		if !ok {
			return zero, fmt.Errorf("unexpected prototype type %T", cloned)
		}
		return typed, nil
	}

	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, fmt.Errorf("message type is required")
	}
	if typ.Kind() != reflect.Ptr {
		return zero, fmt.Errorf("message type %s must be a pointer", typ)
	}

	inst := reflect.New(typ.Elem()).Interface()
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}

func clonePrototype(prototype proto.Message) proto.Message {
	cloned := proto.Clone(prototype)
	proto.Reset(cloned)
	return cloned
}

func isNilProto[T proto.Message](prototype T) bool {
	msg := proto.Message(prototype)
	if msg == nil {
		return true
	}

	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}
