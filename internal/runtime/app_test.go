package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/issuu/kanin/internal/echowire"
	configpkg "github.com/issuu/kanin/internal/runtime/config"
	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	extractpkg "github.com/issuu/kanin/internal/runtime/extract"
	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
)

func TestNewAppValidatesInput(t *testing.T) {
	if _, err := NewApp(nil, loggingpkg.NopLogger{}, Dependencies{}); !errors.Is(err, errspkg.ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}
	if _, err := NewApp(testConfig(), nil, Dependencies{}); !errors.Is(err, errspkg.ErrLoggerRequired) {
		t.Fatalf("expected logger required error, got %v", err)
	}
	if _, err := NewApp(&configpkg.Config{}, loggingpkg.NopLogger{}, Dependencies{}); err == nil {
		t.Fatal("expected validation error for empty config")
	}
}

func TestAddStateRejectsDuplicateType(t *testing.T) {
	app := newTestApp(t, newTestBroker(), &testRecorder{})

	if err := AddState(app, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := AddState(app, 43); !errors.Is(err, errspkg.ErrDuplicateStateType) {
		t.Fatalf("expected duplicate state type error, got %v", err)
	}
}

func TestRunRequiresHandlers(t *testing.T) {
	app := newTestApp(t, newTestBroker(), &testRecorder{})

	err := app.Run(context.Background())
	if !errors.Is(err, errspkg.ErrNoHandlers) {
		t.Fatalf("expected no handlers error, got %v", err)
	}
}

func TestRunRejectsSecondCall(t *testing.T) {
	app := newTestApp(t, newTestBroker(), &testRecorder{})
	app.running.Store(true)

	err := app.Run(context.Background())
	if !errors.Is(err, errspkg.ErrAppAlreadyRunning) {
		t.Fatalf("expected already running error, got %v", err)
	}
}

func TestRunDispatchesAndDrains(t *testing.T) {
	broker := newTestBroker()
	app := newTestApp(t, broker, &testRecorder{})
	if err := app.Register(echoRegistration("echo")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deliveries := waitForChannel(t, broker, "echo")
	d, acker := newTestDelivery("echo", mustMarshal(t, echowire.NewRequest("hello")))
	deliveries <- d

	waitFor(t, func() bool { return len(broker.replies()) == 1 })
	waitFor(t, func() bool { return acker.ackCount() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunCancelDoesNotPreemptInFlightHandler(t *testing.T) {
	broker := newTestBroker()
	app := newTestApp(t, broker, &testRecorder{})

	started := make(chan struct{})
	release := make(chan struct{})
	slow := NewHandler1(extractpkg.ProtoInto(echowire.RequestPrototype()),
		func(ctx context.Context, req proto.Message) (proto.Message, error) {
			close(started)
			<-release
			// Shutdown must not reach a running handler through its context.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return echowire.Success(echowire.RequestValue(req)), nil
		})
	err := app.Register(HandlerRegistration{RoutingKey: "slow", Handler: slow, Response: echowire.ResponsePrototype()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deliveries := waitForChannel(t, broker, "slow")
	d, acker := newTestDelivery("slow", mustMarshal(t, echowire.NewRequest("late")))
	deliveries <- d
	<-started

	cancel()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the handler finished")
	}

	replies := broker.replies()
	if len(replies) != 1 {
		t.Fatalf("expected the in-flight reply to be published, got %d replies", len(replies))
	}
	decoded, err := echowire.DecodeResponse(replies[0].Payload)
	if err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	if decoded.Variant != "success" || decoded.Value != "late" {
		t.Fatalf("unexpected reply %+v", decoded)
	}
	if acker.ackCount() != 1 || len(acker.rejects()) != 0 {
		t.Fatalf("expected exactly one ack, got acks=%d rejects=%v", acker.ackCount(), acker.rejects())
	}
}

func TestRunSealsState(t *testing.T) {
	broker := newTestBroker()
	app := newTestApp(t, broker, &testRecorder{})
	if err := app.Register(echoRegistration("echo")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	waitForChannel(t, broker, "echo")

	if err := AddState(app, 42); !errors.Is(err, errspkg.ErrStateSealed) {
		t.Fatalf("expected sealed state error, got %v", err)
	}

	cancel()
	<-done
}

func TestRunReportsConsumerTermination(t *testing.T) {
	broker := newTestBroker()
	broker.closeOnDone = false
	app := newTestApp(t, broker, &testRecorder{})
	if err := app.Register(echoRegistration("echo")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	deliveries := waitForChannel(t, broker, "echo")
	close(deliveries)

	select {
	case err := <-done:
		if !errors.Is(err, errspkg.ErrConsumerTerminated) {
			t.Fatalf("expected consumer terminated error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the consumer terminated")
	}
}

func TestRunConsumesOneQueuePerHandler(t *testing.T) {
	broker := newTestBroker()
	app := newTestApp(t, broker, &testRecorder{})
	for _, key := range []string{"user.get", "user.create"} {
		if err := app.Register(echoRegistration(key)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	waitForChannel(t, broker, "user.get")
	waitForChannel(t, broker, "user.create")

	broker.mu.Lock()
	bindings := len(broker.bindings)
	broker.mu.Unlock()
	if bindings != 2 {
		t.Fatalf("expected two queue bindings, got %d", bindings)
	}

	cancel()
	<-done
}

func waitForChannel(t *testing.T, broker *testBroker, routingKey string) chan transportpkg.Delivery {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch := broker.channel(routingKey); ch != nil {
			return ch
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("consumer for %q never started", routingKey)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
