// Package mock provides test doubles for the sensor package interfaces.
//
// Use Sensor to inject canned results into registry and engine tests, and to
// inspect the buffers that were submitted for analysis. The Panic and Block
// fields simulate the two failure modes the registry must isolate: a sensor
// that crashes and a sensor that ignores its deadline.
//
// Example:
//
//	s := &mock.Sensor{
//	    SensorID: "breath",
//	    Result:   sensor.Result{Outcome: sensor.OutcomeFailed, Reason: "no_breath_events"},
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// AnalyzeCall records a single invocation of Sensor.Analyze.
type AnalyzeCall struct {
	// Samples is the buffer passed to Analyze.
	Samples []float32

	// SampleRate is the sample rate passed to Analyze.
	SampleRate int
}

// Sensor is a mock implementation of sensor.Sensor.
type Sensor struct {
	mu sync.Mutex

	// SensorID is returned from ID. Defaults to "mock".
	SensorID string

	// Result is returned from Analyze when Err is nil.
	Result sensor.Result

	// Err, if non-nil, is returned as the error from Analyze.
	Err error

	// Panic, if non-empty, makes Analyze panic with this value.
	Panic string

	// Delay makes Analyze sleep before returning, still honouring ctx
	// cancellation.
	Delay time.Duration

	// IgnoreContext makes Delay sleep through ctx cancellation, simulating a
	// hung sensor that never checks its deadline.
	IgnoreContext bool

	// AnalyzeCalls records every call to Analyze in order.
	AnalyzeCalls []AnalyzeCall
}

// ID returns SensorID, or "mock" when unset.
func (s *Sensor) ID() string {
	if s.SensorID == "" {
		return "mock"
	}
	return s.SensorID
}

// Analyze records the call, simulates the configured behaviour, and returns
// Result, Err.
func (s *Sensor) Analyze(ctx context.Context, samples []float32, sampleRate int) (sensor.Result, error) {
	s.mu.Lock()
	s.AnalyzeCalls = append(s.AnalyzeCalls, AnalyzeCall{Samples: samples, SampleRate: sampleRate})
	s.mu.Unlock()

	if s.Panic != "" {
		panic(s.Panic)
	}
	if s.Delay > 0 {
		if s.IgnoreContext {
			time.Sleep(s.Delay)
		} else {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return sensor.Result{}, ctx.Err()
			}
		}
	}
	if s.Err != nil {
		return sensor.Result{}, s.Err
	}
	return s.Result, nil
}

// Calls returns a copy of the recorded Analyze calls. Thread-safe.
func (s *Sensor) Calls() []AnalyzeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnalyzeCall, len(s.AnalyzeCalls))
	copy(out, s.AnalyzeCalls)
	return out
}

// Static returns a mock sensor that always reports the given determinate
// outcome with an optional value/threshold pair.
func Static(id string, outcome sensor.Outcome, value, threshold float64) *Sensor {
	return &Sensor{
		SensorID: id,
		Result: sensor.Result{
			Outcome:   outcome,
			Value:     sensor.Float(value),
			Threshold: sensor.Float(threshold),
			Reason:    string(outcome),
		},
	}
}
