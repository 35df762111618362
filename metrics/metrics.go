package metrics

import "time"

// Recorder receives paywall events. Labels recognised by the prometheus
// recorder are "network" and "outcome"; others are ignored.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names
const (
	EventChallenge      = "challenge"
	EventPaid           = "paid"
	EventIntentCreated  = "intent_created"
	EventIntentFailed   = "intent_failed"
	EventVerify         = "verify"
	EventSettle         = "settle"
	EventResolveFailure = "resolve_failure"
)

// NoopRecorder discards every event.
type NoopRecorder struct{}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
