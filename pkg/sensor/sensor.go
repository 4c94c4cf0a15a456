// Package sensor defines the contract every VoxSentry detector implements and
// the result type the fusion pipeline consumes.
//
// A sensor is an independent detector that produces exactly one measurement
// about an audio sample: a pass/fail judgement against a threshold, a raw
// evidence value, or both. Sensors must be pure — no I/O, no shared mutable
// state — so that the registry can run any number of them concurrently over
// the same immutable buffer. Implementations live outside this module (the
// signal-processing mathematics is not VoxSentry's concern); this package
// fixes only the interface they must satisfy.
package sensor

import "context"

// Outcome is the tri-state judgement a sensor reports about an audio sample.
type Outcome string

const (
	// OutcomePassed means the measurement is consistent with authentic speech.
	OutcomePassed Outcome = "passed"

	// OutcomeFailed means the measurement is inconsistent with authentic speech.
	OutcomeFailed Outcome = "failed"

	// OutcomeIndeterminate means the sensor could not reach a judgement
	// (insufficient signal, internal failure, timeout). Indeterminate results
	// are excluded from weighted scoring entirely — they are never treated as
	// a neutral 0.5.
	OutcomeIndeterminate Outcome = "indeterminate"
)

// IsValid reports whether o is a recognised outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomePassed, OutcomeFailed, OutcomeIndeterminate:
		return true
	}
	return false
}

// Determinate reports whether o represents a completed judgement.
func (o Outcome) Determinate() bool {
	return o == OutcomePassed || o == OutcomeFailed
}

// Result is the standardised measurement produced once per sensor per
// analysis run.
type Result struct {
	// SensorID identifies the sensor that produced this result. Unique within
	// a run; the registry overwrites it with the registered id, so sensor
	// implementations may leave it empty.
	SensorID string `json:"sensor_id" msgpack:"sensor_id"`

	// Outcome is the tri-state judgement.
	Outcome Outcome `json:"outcome" msgpack:"outcome"`

	// Value is the raw continuous measurement, when the sensor produces one.
	// Evidence-only sensors and boolean-only sensors leave it nil.
	Value *float64 `json:"value,omitempty" msgpack:"value,omitempty"`

	// Threshold is the decision threshold Value was compared against, when a
	// comparison happened. Nil whenever Value is nil.
	Threshold *float64 `json:"threshold,omitempty" msgpack:"threshold,omitempty"`

	// Reason is a short machine-greppable explanation of the outcome.
	// Mandatory for indeterminate results (e.g., "clip_too_short").
	Reason string `json:"reason,omitempty" msgpack:"reason,omitempty"`

	// Detail is a free-text human-readable elaboration of Reason.
	Detail string `json:"detail,omitempty" msgpack:"detail,omitempty"`

	// Metadata carries sensor-specific diagnostics. Never interpreted by the
	// fusion pipeline; surfaced verbatim in the audit record.
	Metadata map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// Determinate reports whether r carries a completed pass/fail judgement.
func (r Result) Determinate() bool { return r.Outcome.Determinate() }

// Indeterminate constructs an indeterminate Result with the mandatory reason.
func Indeterminate(sensorID, reason string) Result {
	return Result{
		SensorID: sensorID,
		Outcome:  OutcomeIndeterminate,
		Reason:   reason,
	}
}

// Sensor is the capability interface implemented by every detector.
//
// Analyze must be pure: it may read the shared samples slice but never mutate
// it, and it must not depend on any other sensor's output within the same
// run. Implementations should honour ctx cancellation — the registry imposes
// a per-sensor deadline — and complete within their documented worst-case
// bound for their declared maximum input duration.
type Sensor interface {
	// ID returns the sensor's stable identifier (e.g., "breath",
	// "phase_coherence"). Must be constant for the lifetime of the process.
	ID() string

	// Analyze inspects the mono float32 sample buffer at the given sample
	// rate and returns one Result. A returned error is equivalent to an
	// indeterminate result; the registry converts it and never propagates it
	// upward.
	Analyze(ctx context.Context, samples []float32, sampleRate int) (Result, error)
}

// Float is a convenience helper for building optional Value/Threshold fields.
func Float(v float64) *float64 { return &v }
