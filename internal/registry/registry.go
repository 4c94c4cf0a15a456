// Package registry owns the ordered set of registered sensors and runs them
// against one audio buffer, producing a [sensor.ResultSet] and degrading
// gracefully on individual sensor failure.
//
// Sensor execution is embarrassingly parallel: every sensor reads the same
// immutable buffer and writes only to its own result slot. The registry
// dispatches sensors across an errgroup bounded by the configured
// concurrency limit. Each invocation carries a per-sensor timeout; a slow,
// hung, or panicking sensor is recorded as indeterminate and never blocks
// the pipeline past its own deadline. The whole run additionally carries a
// hard outer deadline after which still-pending sensors are treated as
// failed and fusion proceeds with whatever determinate results exist.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxsentry/voxsentry/internal/config"
	"github.com/voxsentry/voxsentry/internal/observe"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// ErrDuplicateSensor is returned by [Registry.Register] when a sensor id is
// already taken.
var ErrDuplicateSensor = errors.New("registry: sensor already registered")

// entry pairs a sensor with its configuration, in registration order.
type entry struct {
	id     string
	sensor sensor.Sensor
	cfg    config.SensorConfig
}

// Registry holds the active sensor set. Registration happens during startup;
// RunAll may then be called concurrently from any number of goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]int

	runtime config.RuntimeConfig
	metrics *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Registry)

// WithMetrics wires an [observe.Metrics] instance for per-sensor timing and
// failure counters. Without it the registry records nothing.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty Registry using the given runtime settings.
// Zero-valued runtime fields fall back to the documented defaults.
func New(rt config.RuntimeConfig, opts ...Option) *Registry {
	r := &Registry{
		index:   make(map[string]int),
		runtime: runtimeWithDefaults(rt),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a sensor under its unique id together with its configuration.
// Returns [ErrDuplicateSensor] if the id is already taken.
func (r *Registry) Register(s sensor.Sensor, cfg config.SensorConfig) error {
	id := s.ID()
	if id == "" {
		return fmt.Errorf("registry: sensor with empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSensor, id)
	}
	r.index[id] = len(r.entries)
	r.entries = append(r.entries, entry{id: id, sensor: s, cfg: cfg})
	return nil
}

// IDs returns all registered sensor ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.id
	}
	return out
}

// Config returns the configuration registered for a sensor id.
func (r *Registry) Config(id string) (config.SensorConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return config.SensorConfig{}, false
	}
	return r.entries[i].cfg, true
}

// Reconfigure swaps every registered sensor's configuration and the runtime
// settings from a validated config, atomically with respect to RunAll. It
// fails without changing anything if cfg names a sensor that is not
// registered, or omits one that is — an engine must never serve with a
// config that silently misaligns with its sensor set.
func (r *Registry) Reconfigure(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id := range cfg.Sensors {
		if _, ok := r.index[id]; !ok {
			errs = append(errs, fmt.Errorf("registry: config references unknown sensor %q", id))
		}
	}
	for _, e := range r.entries {
		if _, ok := cfg.Sensors[e.id]; !ok {
			errs = append(errs, fmt.Errorf("registry: sensor %q has no configuration", e.id))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for i := range r.entries {
		r.entries[i].cfg = cfg.Sensors[r.entries[i].id]
	}
	r.runtime = runtimeWithDefaults(cfg.Runtime)
	return nil
}

// runtimeWithDefaults fills zero-valued runtime knobs with their documented
// defaults.
func runtimeWithDefaults(rt config.RuntimeConfig) config.RuntimeConfig {
	if rt.Concurrency == 0 {
		rt.Concurrency = 4
	}
	if rt.SensorTimeout == 0 {
		rt.SensorTimeout = config.Duration(2 * time.Second)
	}
	if rt.RunDeadline == 0 {
		rt.RunDeadline = config.Duration(10 * time.Second)
	}
	return rt
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RunAll invokes every enabled sensor's Analyze against the shared buffer
// and collects one result per enabled sensor. Failed, panicking, and
// timed-out sensors are present in the returned set as indeterminate results
// with reason "sensor_failed: <cause>" — never omitted, so evidence stays
// auditable. The returned ordering is the registration order, independent of
// execution order.
//
// RunAll never returns an error: sensor-level failures are data, not control
// flow.
func (r *Registry) RunAll(ctx context.Context, samples []float32, sampleRate int) *sensor.ResultSet {
	r.mu.RLock()
	enabled := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.cfg.Enabled {
			enabled = append(enabled, e)
		}
	}
	rt := r.runtime
	r.mu.RUnlock()

	runCtx, cancel := context.WithTimeout(ctx, rt.RunDeadline.Std())
	defer cancel()

	slots := make([]sensor.Result, len(enabled))
	filled := make([]bool, len(enabled))
	var mu sync.Mutex

	var eg errgroup.Group
	eg.SetLimit(rt.Concurrency)

	for i, e := range enabled {
		eg.Go(func() error {
			res := r.runOne(runCtx, e, samples, sampleRate)
			mu.Lock()
			if !filled[i] {
				slots[i] = res
				filled[i] = true
			}
			mu.Unlock()
			return nil
		})
	}

	// Wait for completion or the hard outer deadline, whichever comes first.
	done := make(chan struct{})
	go func() {
		_ = eg.Wait() // goroutines never return errors
		close(done)
	}()
	select {
	case <-done:
	case <-runCtx.Done():
	}

	mu.Lock()
	results := make([]sensor.Result, len(enabled))
	for i, e := range enabled {
		if !filled[i] {
			// Still pending when the run deadline expired. Laggards that
			// finish later find their slot already filled and drop the write.
			slots[i] = sensor.Indeterminate(e.id, "sensor_failed: run deadline exceeded")
			filled[i] = true
			if r.metrics != nil {
				r.metrics.RecordSensorFailure(ctx, e.id, "run_deadline")
			}
		}
		results[i] = slots[i]
	}
	mu.Unlock()

	rs, err := sensor.NewResultSet(results...)
	if err != nil {
		// Unreachable: ids are unique by registration and always set.
		panic("registry: building result set: " + err.Error())
	}
	return rs
}

// runOne executes a single sensor under its own timeout, converting every
// failure mode — returned error, panic, timeout — into an indeterminate
// result. The invocation runs in a child goroutine so a sensor that ignores
// its context cannot stall the collector.
func (r *Registry) runOne(ctx context.Context, e entry, samples []float32, sampleRate int) sensor.Result {
	timeout := e.cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = r.runtime.SensorTimeout.Std()
	}
	sensCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res sensor.Result
		err error
	}
	ch := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		res, err := e.sensor.Analyze(sensCtx, samples, sampleRate)
		ch <- outcome{res: res, err: err}
	}()

	var res sensor.Result
	var cause string
	select {
	case out := <-ch:
		switch {
		case out.err != nil:
			res = sensor.Indeterminate(e.id, fmt.Sprintf("sensor_failed: %v", out.err))
			cause = "error"
		default:
			res = normalize(e.id, out.res)
		}
	case <-sensCtx.Done():
		res = sensor.Indeterminate(e.id, fmt.Sprintf("sensor_failed: %v", sensCtx.Err()))
		cause = "timeout"
	}

	if r.metrics != nil {
		r.metrics.RecordSensor(ctx, e.id, time.Since(start).Seconds())
		if cause != "" {
			r.metrics.RecordSensorFailure(ctx, e.id, cause)
		}
	}
	return res
}

// normalize enforces the result invariants the rest of the pipeline relies
// on: the sensor id matches the registered id, the outcome is one of the
// three recognised states, and indeterminate results always carry a reason.
func normalize(id string, res sensor.Result) sensor.Result {
	res.SensorID = id
	if !res.Outcome.IsValid() {
		return sensor.Indeterminate(id, fmt.Sprintf("sensor_failed: invalid outcome %q", res.Outcome))
	}
	if res.Outcome == sensor.OutcomeIndeterminate && res.Reason == "" {
		res.Reason = "indeterminate: no reason reported"
	}
	if res.Value != nil && res.Threshold == nil {
		// Value without a threshold is fine (evidence-only), but a threshold
		// without a value is meaningless; drop it.
		return res
	}
	if res.Value == nil && res.Threshold != nil {
		res.Threshold = nil
	}
	return res
}
