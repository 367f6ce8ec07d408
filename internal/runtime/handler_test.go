package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	extractpkg "github.com/issuu/kanin/internal/runtime/extract"
	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
)

// recordingArg appends its name to calls when evaluated, then succeeds with
// its name or fails with the given error.
func recordingArg(calls *[]string, name string, herr *errspkg.HandlerError) extractpkg.Arg[string] {
	return func(ctx context.Context, r *extractpkg.Request) (string, *errspkg.HandlerError) {
		*calls = append(*calls, name)
		if herr != nil {
			return "", herr
		}
		return name, nil
	}
}

func newInvokeRequest() *extractpkg.Request {
	return extractpkg.NewRequest(&transportpkg.Delivery{Headers: map[string]any{}},
		extractpkg.NewStateStore(), loggingpkg.NopLogger{})
}

func TestHandlerArgsEvaluateLeftToRight(t *testing.T) {
	var calls []string
	h := NewHandler3(
		recordingArg(&calls, "a", nil),
		recordingArg(&calls, "b", nil),
		recordingArg(&calls, "c", nil),
		func(ctx context.Context, a, b, c string) (*wrapperspb.StringValue, error) {
			calls = append(calls, "body")
			return wrapperspb.String(a + b + c), nil
		})

	out := h.invoke(context.Background(), newInvokeRequest())
	if out.err != nil {
		t.Fatalf("unexpected handler error: %v", out.err)
	}
	if got := strings.Join(calls, ","); got != "a,b,c,body" {
		t.Fatalf("expected strict left-to-right evaluation, got %q", got)
	}
	reply, ok := out.reply.(*wrapperspb.StringValue)
	if !ok || reply.GetValue() != "abc" {
		t.Fatalf("unexpected reply %v", out.reply)
	}
}

func TestHandlerFirstArgFailureShortCircuits(t *testing.T) {
	var calls []string
	herr := errspkg.NewInvalidRequest(errors.New("missing"))
	h := NewHandler2(
		recordingArg(&calls, "a", herr),
		recordingArg(&calls, "b", nil),
		func(ctx context.Context, a, b string) (*wrapperspb.StringValue, error) {
			calls = append(calls, "body")
			return wrapperspb.String("unreachable"), nil
		})

	out := h.invoke(context.Background(), newInvokeRequest())
	if out.err != herr || !out.extraction {
		t.Fatalf("expected the extraction failure, got err=%v extraction=%v", out.err, out.extraction)
	}
	if got := strings.Join(calls, ","); got != "a" {
		t.Fatalf("later extractors must not run after a failure, got %q", got)
	}
}

func TestHandlerLaterArgFailureSkipsBody(t *testing.T) {
	var calls []string
	herr := errspkg.NewInvalidRequest(errors.New("bad header"))
	h := NewHandler3(
		recordingArg(&calls, "a", nil),
		recordingArg(&calls, "b", nil),
		recordingArg(&calls, "c", herr),
		func(ctx context.Context, a, b, c string) (*wrapperspb.StringValue, error) {
			calls = append(calls, "body")
			return wrapperspb.String("unreachable"), nil
		})

	out := h.invoke(context.Background(), newInvokeRequest())
	if out.err != herr || !out.extraction {
		t.Fatalf("expected the extraction failure, got err=%v extraction=%v", out.err, out.extraction)
	}
	if got := strings.Join(calls, ","); got != "a,b,c" {
		t.Fatalf("the handler body must not run after a failure, got %q", got)
	}
}
