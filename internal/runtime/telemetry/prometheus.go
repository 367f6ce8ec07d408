package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exposes dispatch events as Prometheus metrics under the
// "kanin" namespace.
type PrometheusRecorder struct {
	received    *prometheus.CounterVec
	extractFail *prometheus.CounterVec
	handlerFail *prometheus.CounterVec
	completed   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the dispatch metrics on the given registerer
// and returns the recorder. Pass prometheus.DefaultRegisterer for the usual
// process-wide registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanin",
			Name:      "requests_received_total",
			Help:      "Deliveries pulled from the broker, by routing key.",
		}, []string{"routing_key"}),
		extractFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanin",
			Name:      "extraction_failures_total",
			Help:      "Requests aborted because an extractor failed.",
		}, []string{"routing_key"}),
		handlerFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanin",
			Name:      "handler_failures_total",
			Help:      "Requests whose handler returned an error or panicked.",
		}, []string{"routing_key"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanin",
			Name:      "requests_completed_total",
			Help:      "Dispatch units that reached a terminal outcome.",
		}, []string{"routing_key", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kanin",
			Name:      "request_duration_seconds",
			Help:      "End-to-end dispatch duration, including the reply publish.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"routing_key"}),
	}

	reg.MustRegister(r.received, r.extractFail, r.handlerFail, r.completed, r.duration)
	return r
}

func (r *PrometheusRecorder) RequestReceived(routingKey string) {
	r.received.WithLabelValues(routingKey).Inc()
}

func (r *PrometheusRecorder) ExtractionFailed(routingKey string) {
	r.extractFail.WithLabelValues(routingKey).Inc()
}

func (r *PrometheusRecorder) HandlerFailed(routingKey string) {
	r.handlerFail.WithLabelValues(routingKey).Inc()
}

func (r *PrometheusRecorder) RequestCompleted(routingKey string, outcome Outcome, elapsed time.Duration) {
	r.completed.WithLabelValues(routingKey, string(outcome)).Inc()
	r.duration.WithLabelValues(routingKey).Observe(elapsed.Seconds())
}
