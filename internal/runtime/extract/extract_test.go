package extract

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	idspkg "github.com/issuu/kanin/internal/runtime/ids"
	loggingpkg "github.com/issuu/kanin/internal/runtime/logging"
	transportpkg "github.com/issuu/kanin/internal/runtime/transport"
)

func newTestRequest(t *testing.T, payload []byte, headers map[string]any) *Request {
	t.Helper()
	if headers == nil {
		headers = map[string]any{}
	}
	return NewRequest(&transportpkg.Delivery{
		Payload:    payload,
		RoutingKey: "test.key",
		Headers:    headers,
	}, NewStateStore(), loggingpkg.NopLogger{})
}

func TestRequestIDReusesHeader(t *testing.T) {
	r := newTestRequest(t, nil, map[string]any{idspkg.HeaderReqID: "req-7"})
	if r.ReqID() != "req-7" {
		t.Fatalf("expected req-7, got %q", r.ReqID())
	}
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	r := newTestRequest(t, nil, nil)
	if r.ReqID() == "" {
		t.Fatal("expected a generated request id")
	}
	other := newTestRequest(t, nil, nil)
	if r.ReqID() == other.ReqID() {
		t.Fatal("expected distinct request ids")
	}
}

func TestPutRejectsDuplicateType(t *testing.T) {
	r := newTestRequest(t, nil, nil)

	if err := Put(r, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Put(r, "second"); !errors.Is(err, errspkg.ErrDuplicateValueType) {
		t.Fatalf("expected duplicate value error, got %v", err)
	}
	v, ok := Get[string](r)
	if !ok || v != "first" {
		t.Fatalf("expected the first value to survive, got %q ok=%v", v, ok)
	}
}

func TestGetDistinguishesInterfaceTypes(t *testing.T) {
	r := newTestRequest(t, nil, nil)

	if err := Put(r, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := Get[error](r); !ok {
		t.Fatal("expected the error value to be retrievable as error")
	}
	if _, ok := Get[string](r); ok {
		t.Fatal("did not expect a string value")
	}
}

func TestProtoDecodesPayload(t *testing.T) {
	payload, err := proto.Marshal(wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	r := newTestRequest(t, payload, nil)

	msg, herr := Proto[*wrapperspb.StringValue]()(context.Background(), r)
	if herr != nil {
		t.Fatalf("unexpected handler error: %v", herr)
	}
	if msg.GetValue() != "hello" {
		t.Fatalf("expected hello, got %q", msg.GetValue())
	}

	// The decoded message is stored for later extractors.
	stored, herr := Stored[*wrapperspb.StringValue]()(context.Background(), r)
	if herr != nil {
		t.Fatalf("unexpected handler error: %v", herr)
	}
	if stored != msg {
		t.Fatal("expected the stored message to be the decoded one")
	}
}

func TestProtoRejectsMalformedPayload(t *testing.T) {
	r := newTestRequest(t, []byte{0xff, 0xff, 0xff}, nil)

	_, herr := Proto[*wrapperspb.StringValue]()(context.Background(), r)
	if herr == nil {
		t.Fatal("expected a handler error")
	}
	if herr.Kind() != errspkg.KindInvalidRequest {
		t.Fatalf("expected invalid request, got %v", herr.Kind())
	}
}

func TestHeaderExtraction(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]any
		want    string
		wantErr bool
	}{
		{name: "string header", headers: map[string]any{"tenant": "acme"}, want: "acme"},
		{name: "byte header", headers: map[string]any{"tenant": []byte("acme")}, want: "acme"},
		{name: "missing header", headers: map[string]any{}, wantErr: true},
		{name: "wrong type", headers: map[string]any{"tenant": 7}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRequest(t, nil, tt.headers)
			v, herr := Header("tenant")(context.Background(), r)
			if tt.wantErr {
				if herr == nil {
					t.Fatal("expected a handler error")
				}
				if herr.Kind() != errspkg.KindInvalidRequest {
					t.Fatalf("expected invalid request, got %v", herr.Kind())
				}
				return
			}
			if herr != nil {
				t.Fatalf("unexpected handler error: %v", herr)
			}
			if v != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, v)
			}
		})
	}
}

func TestStateExtraction(t *testing.T) {
	store := NewStateStore()
	if err := PutState(store, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := NewRequest(&transportpkg.Delivery{Headers: map[string]any{}}, store, loggingpkg.NopLogger{})

	v, herr := State[int]()(context.Background(), r)
	if herr != nil {
		t.Fatalf("unexpected handler error: %v", herr)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}

	_, herr = State[string]()(context.Background(), r)
	if herr == nil {
		t.Fatal("expected a handler error for missing state")
	}
	if herr.Kind() != errspkg.KindInternal {
		t.Fatalf("expected internal error, got %v", herr.Kind())
	}
}

func TestStateStoreSeal(t *testing.T) {
	store := NewStateStore()
	store.Seal()

	if err := PutState(store, 42); !errors.Is(err, errspkg.ErrStateSealed) {
		t.Fatalf("expected sealed error, got %v", err)
	}
}

func TestStateStoreRejectsDuplicateType(t *testing.T) {
	store := NewStateStore()
	if err := PutState(store, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := PutState(store, "b"); !errors.Is(err, errspkg.ErrDuplicateStateType) {
		t.Fatalf("expected duplicate state error, got %v", err)
	}
}

func TestReqIDExtractor(t *testing.T) {
	r := newTestRequest(t, nil, map[string]any{idspkg.HeaderReqID: "req-9"})

	id, herr := ReqID()(context.Background(), r)
	if herr != nil {
		t.Fatalf("unexpected handler error: %v", herr)
	}
	if id.String() != "req-9" {
		t.Fatalf("expected req-9, got %q", id)
	}
}

func TestRawAndDeliveryExtractors(t *testing.T) {
	r := newTestRequest(t, []byte("payload"), nil)

	raw, herr := Raw()(context.Background(), r)
	if herr != nil {
		t.Fatalf("unexpected handler error: %v", herr)
	}
	if string(raw) != "payload" {
		t.Fatalf("expected payload bytes, got %q", raw)
	}

	d, herr := Delivery()(context.Background(), r)
	if herr != nil {
		t.Fatalf("unexpected handler error: %v", herr)
	}
	if d.RoutingKey != "test.key" {
		t.Fatalf("expected the delivery, got %+v", d)
	}
}

type recordedAcker struct {
	acks int
}

func (a *recordedAcker) Ack() error          { a.acks++; return nil }
func (a *recordedAcker) Reject(_ bool) error { return nil }

func TestDeliveryExtractorHidesAcker(t *testing.T) {
	acker := &recordedAcker{}
	r := NewRequest(&transportpkg.Delivery{
		RoutingKey: "test.key",
		Headers:    map[string]any{},
		Acker:      acker,
	}, NewStateStore(), loggingpkg.NopLogger{})

	d, herr := Delivery()(context.Background(), r)
	if herr != nil {
		t.Fatalf("unexpected handler error: %v", herr)
	}
	if d.Acker != nil {
		t.Fatal("extracted delivery must not expose the acker")
	}
	if d.RoutingKey != "test.key" {
		t.Fatalf("expected the delivery metadata, got %+v", d)
	}
	// The framework still settles through the original delivery.
	if r.Delivery().Acker == nil {
		t.Fatal("the request lost its acker")
	}
}
