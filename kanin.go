package kanin

import (
	"context"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/issuu/kanin/internal/runtime"
	configpkg "github.com/issuu/kanin/internal/runtime/config"
	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	extractpkg "github.com/issuu/kanin/internal/runtime/extract"
	idspkg "github.com/issuu/kanin/internal/runtime/ids"
	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
	telemetrypkg "github.com/issuu/kanin/internal/runtime/telemetry"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
	wirepkg "github.com/issuu/kanin/internal/runtime/wire"
)

type (
	Config = configpkg.Config

	App                 = runtimepkg.App
	Dependencies        = runtimepkg.Dependencies
	Handler             = runtimepkg.Handler
	HandlerRegistration = runtimepkg.HandlerRegistration
	QueueConfig         = runtimepkg.QueueConfig

	HandlerError = errspkg.HandlerError
	ErrorKind    = errspkg.Kind

	Request    = extractpkg.Request
	RequestID  = extractpkg.RequestID
	Arg[T any] = extractpkg.Arg[T]

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
	NopLogger     = loggingpkg.NopLogger

	Delivery     = transportpkg.Delivery
	QueueBinding = transportpkg.QueueBinding
	Reply        = transportpkg.Reply
	Broker       = transportpkg.Broker

	Recorder = telemetrypkg.Recorder
	Outcome  = telemetrypkg.Outcome
)

const (
	// KindInvalidRequest marks errors caused by the caller's payload.
	KindInvalidRequest = errspkg.KindInvalidRequest
	// KindInternal marks server-side failures.
	KindInternal = errspkg.KindInternal

	// HeaderReqID is the AMQP header carrying the request id across services.
	HeaderReqID = idspkg.HeaderReqID

	// DefaultExchange is the exchange handler queues bind to unless
	// configured otherwise.
	DefaultExchange = configpkg.DefaultExchange
	// DefaultPrefetch is the per-consumer prefetch applied by default.
	DefaultPrefetch = configpkg.DefaultPrefetch
)

const (
	OutcomeSuccess        = telemetrypkg.OutcomeSuccess
	OutcomeInvalidRequest = telemetrypkg.OutcomeInvalidRequest
	OutcomeInternalError  = telemetrypkg.OutcomeInternalError
	OutcomeDropped        = telemetrypkg.OutcomeDropped
	OutcomeRequeued       = telemetrypkg.OutcomeRequeued
)

var (
	NewApp         = runtimepkg.NewApp
	NewQueueConfig = runtimepkg.NewQueueConfig
	ValidateConfig = configpkg.ValidateConfig

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

	NewPrometheusRecorder = telemetrypkg.NewPrometheusRecorder

	DialBroker = transportpkg.Dial

	// Handler error constructors. NewInternalMessage surfaces its description
	// on the wire; NewInternal collapses to a generic description instead.
	NewInvalidRequest  = errspkg.NewInvalidRequest
	NewInternal        = errspkg.NewInternal
	NewInternalMessage = errspkg.NewInternalMessage

	// Standalone protocol error messages and their decoders, used where no
	// handler-specific response envelope exists.
	NewInvalidRequestMessage = wirepkg.NewInvalidRequest
	NewInternalErrorMessage  = wirepkg.NewInternalError
	DecodeInvalidRequest     = wirepkg.DecodeInvalidRequest
	DecodeInternalError      = wirepkg.DecodeInternalError

	// Non-generic extractors.
	ProtoInto   = extractpkg.ProtoInto
	Raw         = extractpkg.Raw
	Header      = extractpkg.Header
	ReqID       = extractpkg.ReqID
	DeliveryArg = extractpkg.Delivery

	NewRequestID = idspkg.NewRequestID

	ErrAppRequired         = errspkg.ErrAppRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrRoutingKeyRequired  = errspkg.ErrRoutingKeyRequired
	ErrDuplicateRoutingKey = errspkg.ErrDuplicateRoutingKey
	ErrNoHandlers          = errspkg.ErrNoHandlers
	ErrAppAlreadyRunning   = errspkg.ErrAppAlreadyRunning
	ErrConsumerTerminated  = errspkg.ErrConsumerTerminated
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrResponseRequired    = errspkg.ErrResponseRequired
	ErrStateSealed         = errspkg.ErrStateSealed
	ErrDuplicateStateType  = errspkg.ErrDuplicateStateType
	ErrDuplicateValueType  = errspkg.ErrDuplicateValueType
)

// AddState stores a value handlers can extract with State. One value per
// type.
func AddState[T any](app *App, value T) error {
	return runtimepkg.AddState(app, value)
}

// Proto extracts the delivery payload decoded as the protobuf message T.
func Proto[T proto.Message]() Arg[T] {
	return extractpkg.Proto[T]()
}

// State extracts a value previously added to the app with AddState.
func State[T any]() Arg[T] {
	return extractpkg.State[T]()
}

// Stored extracts a value stored in the request context by an earlier
// extractor.
func Stored[T any]() Arg[T] {
	return extractpkg.Stored[T]()
}

// NewHandler adapts a handler that needs no extracted arguments. The arity
// variants below accept up to four extractors, evaluated left to right before
// the handler body runs.
func NewHandler[Res proto.Message](fn func(ctx context.Context) (Res, error)) Handler {
	return runtimepkg.NewHandler(fn)
}

func NewHandler1[A any, Res proto.Message](a Arg[A], fn func(ctx context.Context, a A) (Res, error)) Handler {
	return runtimepkg.NewHandler1(a, fn)
}

func NewHandler2[A, B any, Res proto.Message](a Arg[A], b Arg[B], fn func(ctx context.Context, a A, b B) (Res, error)) Handler {
	return runtimepkg.NewHandler2(a, b, fn)
}

func NewHandler3[A, B, C any, Res proto.Message](a Arg[A], b Arg[B], c Arg[C], fn func(ctx context.Context, a A, b B, c C) (Res, error)) Handler {
	return runtimepkg.NewHandler3(a, b, c, fn)
}

func NewHandler4[A, B, C, D any, Res proto.Message](a Arg[A], b Arg[B], c Arg[C], d Arg[D], fn func(ctx context.Context, a A, b B, c C, d D) (Res, error)) Handler {
	return runtimepkg.NewHandler4(a, b, c, d, fn)
}
