package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.RequestReceived("echo")
	r.RequestReceived("echo")
	r.ExtractionFailed("echo")
	r.HandlerFailed("echo")
	r.RequestCompleted("echo", OutcomeSuccess, 5*time.Millisecond)
	r.RequestCompleted("echo", OutcomeInvalidRequest, time.Millisecond)

	if got := testutil.ToFloat64(r.received.WithLabelValues("echo")); got != 2 {
		t.Fatalf("expected 2 received, got %v", got)
	}
	if got := testutil.ToFloat64(r.extractFail.WithLabelValues("echo")); got != 1 {
		t.Fatalf("expected 1 extraction failure, got %v", got)
	}
	if got := testutil.ToFloat64(r.handlerFail.WithLabelValues("echo")); got != 1 {
		t.Fatalf("expected 1 handler failure, got %v", got)
	}
	if got := testutil.ToFloat64(r.completed.WithLabelValues("echo", string(OutcomeSuccess))); got != 1 {
		t.Fatalf("expected 1 success completion, got %v", got)
	}
	if got := testutil.ToFloat64(r.completed.WithLabelValues("echo", string(OutcomeInvalidRequest))); got != 1 {
		t.Fatalf("expected 1 invalid request completion, got %v", got)
	}
}

func TestMultiRecorderFansOut(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	r1 := NewPrometheusRecorder(reg1)
	r2 := NewPrometheusRecorder(reg2)

	multi := MultiRecorder{r1, r2}
	multi.RequestReceived("echo")

	for _, r := range []*PrometheusRecorder{r1, r2} {
		if got := testutil.ToFloat64(r.received.WithLabelValues("echo")); got != 1 {
			t.Fatalf("expected the event on every recorder, got %v", got)
		}
	}
}
