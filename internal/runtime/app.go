package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/proto"

	configpkg "github.com/issuu/kanin/internal/runtime/config"
	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	extractpkg "github.com/issuu/kanin/internal/runtime/extract"
	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
	telemetrypkg "github.com/issuu/kanin/internal/runtime/telemetry"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
	wirepkg "github.com/issuu/kanin/internal/runtime/wire"
)

// Dependencies holds the optional collaborators an App can be built with.
// Leave fields nil to use the defaults selected by the configuration.
type Dependencies struct {
	// Broker replaces the AMQP connection dialed from the configured URL,
	// mostly for tests.
	Broker transportpkg.Broker
	// Recorder replaces the telemetry sink. When nil, a Prometheus recorder
	// is installed if metrics are enabled, otherwise events are discarded.
	Recorder telemetrypkg.Recorder
}

// App owns the routing table, the shared state handlers extract, and the
// consumer loops. Register handlers and add state on the built App, then call
// Run.
type App struct {
	Conf   configpkg.Config
	Logger loggingpkg.ServiceLogger

	router *router
	state  *extractpkg.StateStore

	broker      transportpkg.Broker
	ownedBroker bool
	recorder    telemetrypkg.Recorder
	registry    *prometheus.Registry

	running atomic.Bool
	units   sync.WaitGroup
}

// NewApp validates the configuration and builds an App.
func NewApp(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*App, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	normalized := conf.Normalize()

	log.Info("Creating app", loggingpkg.LogFields{"config": normalized.String()})

	a := &App{
		Conf:     normalized,
		Logger:   log,
		router:   newRouter(),
		state:    extractpkg.NewStateStore(),
		broker:   deps.Broker,
		recorder: deps.Recorder,
	}
	if a.recorder == nil {
		if normalized.MetricsEnabled {
			a.registry = prometheus.NewRegistry()
			a.recorder = telemetrypkg.NewPrometheusRecorder(a.registry)
		} else {
			a.recorder = telemetrypkg.NopRecorder{}
		}
	}
	return a, nil
}

// AddState stores a value handlers can extract with the State extractor. One
// value per type; wrap values in named types to store more than one of the
// same underlying type.
func AddState[T any](a *App, value T) error {
	if a == nil {
		return errspkg.ErrAppRequired
	}
	return extractpkg.PutState(a.state, value)
}

// HandlerRegistration binds a handler to a routing key.
type HandlerRegistration struct {
	// RoutingKey the handler consumes. Also the default queue name.
	RoutingKey string
	// Handler built with NewHandler or one of its arity variants.
	Handler Handler
	// Queue overrides how the backing queue is declared and consumed.
	Queue *QueueConfig
	// NoReply suppresses reply publishing even when the caller supplies a
	// reply address.
	NoReply bool
	// Response overrides the envelope prototype used to encode handler
	// errors. Required for response types that cannot be constructed from
	// their Go type alone, such as dynamic messages.
	Response proto.Message
	// ErrorMapper replaces the default error mapping, which fills the
	// envelope's invalid_request or internal_error field by name.
	ErrorMapper func(herr *errspkg.HandlerError) (proto.Message, error)
}

// Register adds the handler to the routing table. Registration closes once
// Run has been called.
func (a *App) Register(cfg HandlerRegistration) error {
	if a == nil {
		return errspkg.ErrAppRequired
	}
	if cfg.RoutingKey == "" {
		return errspkg.ErrRoutingKeyRequired
	}
	if cfg.Handler.invoke == nil {
		return errspkg.ErrHandlerRequired
	}
	if a.running.Load() {
		return errspkg.ErrAppAlreadyRunning
	}

	queue := NewQueueConfig()
	if cfg.Queue != nil {
		queue = *cfg.Queue
	}

	newResponse := cfg.Handler.newResponse
	if cfg.Response != nil {
		prototype := cfg.Response
		newResponse = func() (proto.Message, error) {
			fresh := proto.Clone(prototype)
			proto.Reset(fresh)
			return fresh, nil
		}
	}
	if newResponse == nil {
		return errspkg.ErrResponseRequired
	}

	return a.router.register(&handlerDescriptor{
		routingKey:  cfg.RoutingKey,
		queue:       queue,
		handler:     cfg.Handler,
		noReply:     cfg.NoReply,
		newResponse: newResponse,
		errorMapper: cfg.ErrorMapper,
	})
}

// handlerDescriptor is a registration resolved into the form the dispatch
// unit consumes.
type handlerDescriptor struct {
	routingKey  string
	queue       QueueConfig
	handler     Handler
	noReply     bool
	newResponse func() (proto.Message, error)
	errorMapper func(*errspkg.HandlerError) (proto.Message, error)
}

// errorEnvelope builds the response envelope carrying the handler error.
func (d *handlerDescriptor) errorEnvelope(herr *errspkg.HandlerError) (proto.Message, error) {
	if d.errorMapper != nil {
		return d.errorMapper(herr)
	}
	env, err := d.newResponse()
	if err != nil {
		return nil, err
	}
	if err := wirepkg.PopulateError(env, herr); err != nil {
		return nil, err
	}
	return env, nil
}

// Run connects to the broker, starts one consumer per registered handler, and
// blocks until the context is cancelled and all in-flight dispatch units have
// drained. Cancellation is the normal shutdown path and returns nil; a
// consumer terminating on its own is an error.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errspkg.ErrAppAlreadyRunning
	}
	if a.router.len() == 0 {
		return errspkg.ErrNoHandlers
	}
	a.state.Seal()

	if a.broker == nil {
		broker, err := transportpkg.Dial(ctx, transportpkg.DialConfig{
			URL:     a.Conf.AMQPURL,
			Timeout: a.Conf.DialTimeout,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.broker = broker
		a.ownedBroker = true
	}
	a.startMetricsServer()

	descriptors := a.router.descriptors()
	channels := make([]<-chan transportpkg.Delivery, len(descriptors))
	for i, desc := range descriptors {
		deliveries, err := a.broker.Consume(ctx, desc.queue.binding(desc.routingKey, a.Conf))
		if err != nil {
			a.closeBroker()
			return fmt.Errorf("consume %q: %w", desc.routingKey, err)
		}
		channels[i] = deliveries
	}

	a.Logger.Info("App started", loggingpkg.LogFields{"handlers": len(descriptors)})

	var termErr error
	var termOnce sync.Once
	var consumers sync.WaitGroup
	for i, desc := range descriptors {
		consumers.Add(1)
		go func(desc *handlerDescriptor, deliveries <-chan transportpkg.Delivery) {
			defer consumers.Done()
			a.consume(ctx, deliveries)
			if ctx.Err() == nil {
				a.Logger.Error("Consumer terminated", errspkg.ErrConsumerTerminated,
					loggingpkg.LogFields{"routing_key": desc.routingKey})
				termOnce.Do(func() { termErr = errspkg.ErrConsumerTerminated })
			}
		}(desc, channels[i])
	}

	consumers.Wait()
	a.units.Wait()
	a.closeBroker()

	a.Logger.Info("App stopped", nil)
	return termErr
}

// consume drains one delivery channel, dispatching each delivery on its own
// goroutine. Concurrency per handler is bounded by the queue prefetch.
// Dispatch units run on an uncancellable copy of the run context: shutdown
// stops pulling new deliveries, while in-flight handlers complete, reply, and
// settle before Run returns.
func (a *App) consume(ctx context.Context, deliveries <-chan transportpkg.Delivery) {
	unitCtx := context.WithoutCancel(ctx)
	for d := range deliveries {
		a.units.Add(1)
		go func(d transportpkg.Delivery) {
			defer a.units.Done()
			a.dispatch(unitCtx, d)
		}(d)
	}
}

func (a *App) closeBroker() {
	if !a.ownedBroker {
		return
	}
	if err := a.broker.Close(); err != nil {
		a.Logger.Error("Failed to close broker connection", err, nil)
	}
}

func (a *App) startMetricsServer() {
	if a.registry == nil {
		return
	}
	addr := fmt.Sprintf(":%d", a.Conf.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.Logger.Info("Starting metrics server", loggingpkg.LogFields{"address": addr})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.Logger.Error("Failed to start metrics server", err, loggingpkg.LogFields{"address": addr})
		}
	}()
}
