// Package extract implements the typed extraction pipeline: the per-request
// context and the extractors that turn a raw delivery into strongly typed
// handler arguments.
package extract

import (
	"reflect"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	idspkg "github.com/issuu/kanin/internal/runtime/ids"
	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
)

// RequestID is the per-request identifier. It is stored in the request context
// by the framework, so handlers can declare it as an argument.
type RequestID string

func (id RequestID) String() string { return string(id) }

// Request is the per-request context: the immutable delivery, a fresh request
// id, and a type-keyed store holding at most one value per type. A Request is
// owned by exactly one dispatch unit and must not be shared across units.
type Request struct {
	reqID    RequestID
	delivery *transportpkg.Delivery
	values   map[reflect.Type]any
	state    *StateStore
	logger   loggingpkg.ServiceLogger
}

// NewRequest builds the context for one delivery. The request id reuses the
// caller's req_id header when present, otherwise a new ULID is generated.
func NewRequest(delivery *transportpkg.Delivery, state *StateStore, logger loggingpkg.ServiceLogger) *Request {
	reqID := RequestID(idspkg.RequestIDFromHeaders(delivery.Headers))
	r := &Request{
		reqID:    reqID,
		delivery: delivery,
		values:   make(map[reflect.Type]any),
		state:    state,
		logger:   logger.With(loggingpkg.LogFields{"req_id": string(reqID)}),
	}
	r.values[typeKey[RequestID]()] = reqID
	return r
}

// ReqID returns the request id.
func (r *Request) ReqID() string { return string(r.reqID) }

// Delivery returns the delivery this request was built from.
func (r *Request) Delivery() *transportpkg.Delivery { return r.delivery }

// Logger returns a logger annotated with the request id.
func (r *Request) Logger() loggingpkg.ServiceLogger { return r.logger }

// Header returns the raw header value for the key.
func (r *Request) Header(key string) (any, bool) {
	v, ok := r.delivery.Headers[key]
	return v, ok
}

// Put stores a value in the request context. At most one value per type may be
// stored; storing a second value of the same type is an error.
func Put[T any](r *Request, value T) error {
	key := typeKey[T]()
	if _, exists := r.values[key]; exists {
		return errspkg.ErrDuplicateValueType
	}
	r.values[key] = value
	return nil
}

// Get retrieves a previously stored value of type T.
func Get[T any](r *Request) (T, bool) {
	v, ok := r.values[typeKey[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// putIfAbsent stores the value unless one of the same type already exists.
// Extractors use this so running the same extractor twice stays harmless.
func putIfAbsent[T any](r *Request, value T) {
	key := typeKey[T]()
	if _, exists := r.values[key]; !exists {
		r.values[key] = value
	}
}

// typeKey identifies T itself, which keeps interface-typed entries distinct
// from the concrete types stored in them.
func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
