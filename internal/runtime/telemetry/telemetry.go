// Package telemetry defines the discrete events the dispatch engine emits and
// sinks that consume them. The engine does not care what a sink does with the
// events.
package telemetry

import "time"

// Outcome is the terminal result of one dispatch unit, as seen on the wire or
// by the broker.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeInvalidRequest Outcome = "invalid_request"
	OutcomeInternalError  Outcome = "internal_error"
	// OutcomeDropped means the delivery was rejected without requeue
	// (unroutable, or the reply could not be delivered after a redelivery).
	OutcomeDropped Outcome = "dropped"
	// OutcomeRequeued means the delivery was handed back to the broker for
	// one more attempt after a transient reply publish failure.
	OutcomeRequeued Outcome = "requeued"
)

// Recorder consumes dispatch events. Implementations must be safe for
// concurrent use; events for different deliveries arrive from different
// goroutines.
type Recorder interface {
	RequestReceived(routingKey string)
	ExtractionFailed(routingKey string)
	HandlerFailed(routingKey string)
	RequestCompleted(routingKey string, outcome Outcome, elapsed time.Duration)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) RequestReceived(string)                          {}
func (NopRecorder) ExtractionFailed(string)                         {}
func (NopRecorder) HandlerFailed(string)                            {}
func (NopRecorder) RequestCompleted(string, Outcome, time.Duration) {}

// MultiRecorder fans events out to several sinks.
type MultiRecorder []Recorder

func (m MultiRecorder) RequestReceived(routingKey string) {
	for _, r := range m {
		r.RequestReceived(routingKey)
	}
}

func (m MultiRecorder) ExtractionFailed(routingKey string) {
	for _, r := range m {
		r.ExtractionFailed(routingKey)
	}
}

func (m MultiRecorder) HandlerFailed(routingKey string) {
	for _, r := range m {
		r.HandlerFailed(routingKey)
	}
}

func (m MultiRecorder) RequestCompleted(routingKey string, outcome Outcome, elapsed time.Duration) {
	for _, r := range m {
		r.RequestCompleted(routingKey, outcome, elapsed)
	}
}
