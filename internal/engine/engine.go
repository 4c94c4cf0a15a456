// Package engine wires the sensor registry, fusion engine, and decision
// classifier into the single Analyze operation callers consume.
//
// The engine holds its configuration in an atomic pointer: the hot path only
// ever reads an immutable snapshot, and a new config is swapped in whole via
// [Engine.Reload] — triggered by an explicit operator promotion, never by
// calibration writing into the live path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxsentry/voxsentry/internal/audit"
	"github.com/voxsentry/voxsentry/internal/config"
	"github.com/voxsentry/voxsentry/internal/decision"
	"github.com/voxsentry/voxsentry/internal/fusion"
	"github.com/voxsentry/voxsentry/internal/observe"
	"github.com/voxsentry/voxsentry/internal/registry"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// ErrNoAudio is returned by Analyze for a structurally invalid input —
// the only condition that surfaces as a hard error instead of a verdict.
var ErrNoAudio = errors.New("engine: empty audio buffer")

// Report is the full outcome of one analysis run: the audit record handed to
// the serving layer. It is created fresh per request, immutable once
// returned, and fully reconstructable from ContributingFactors plus Evidence
// alone — no hidden state is needed to explain the verdict. It is never
// persisted together with the source audio.
type Report struct {
	// RunID uniquely identifies this analysis run.
	RunID string `json:"run_id"`

	// Verdict is the caller-facing classification.
	Verdict decision.Verdict `json:"verdict"`

	// State is the classifier's terminal state.
	State decision.State `json:"state"`

	// RiskLevel bands the score for display.
	RiskLevel decision.RiskLevel `json:"risk_level"`

	// Tier is the escalation urgency band, set only when State is ESCALATE.
	Tier decision.Tier `json:"escalation_tier,omitempty"`

	// Reason is the classifier's decision reason.
	Reason string `json:"reason"`

	// GlobalRiskScore is the fused composite risk score in [0,1].
	GlobalRiskScore float64 `json:"global_risk_score"`

	// Confidence measures agreement among contributing sensors.
	Confidence float64 `json:"confidence"`

	// ContributingFactors ranks each weighted sensor's contribution.
	ContributingFactors []fusion.Factor `json:"contributing_factors"`

	// Evidence holds every enabled sensor's result, failed sensors included.
	Evidence *sensor.ResultSet `json:"evidence"`

	// Environment summarises the acoustic channel quality of the input.
	Environment registry.Environment `json:"environment"`

	// Duration is how long the run took end to end.
	Duration time.Duration `json:"duration_ns"`

	// CreatedAt is when the verdict was produced.
	CreatedAt time.Time `json:"created_at"`
}

// Engine runs the full analyse-fuse-classify pipeline.
type Engine struct {
	cfg     atomic.Pointer[config.Config]
	reg     *registry.Registry
	store   audit.Store
	metrics *observe.Metrics
	now     func() time.Time
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithAuditStore wires a verdict audit store. Recording is best-effort: a
// failing store is logged, never surfaced to the caller.
func WithAuditStore(s audit.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics wires an [observe.Metrics] instance for run counters and
// latency histograms.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over an already-populated registry. cfg must have
// passed [config.Validate]; New additionally cross-checks it against the
// registered sensor set and synchronises the registry with it, so a config
// naming an unknown sensor fails here — at startup — rather than
// misclassifying later.
func New(cfg *config.Config, reg *registry.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{reg: reg, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	if err := reg.Reconfigure(cfg); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.cfg.Store(cfg)
	return e, nil
}

// Config returns the current immutable config snapshot.
func (e *Engine) Config() *config.Config {
	return e.cfg.Load()
}

// Reload validates cfg against the sensor set and atomically swaps it in.
// On any error the previous config keeps serving. Intended as the callback
// for a [config.Watcher], which fires only on an operator-promoted file
// change.
func (e *Engine) Reload(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("engine: reload rejected: %w", err)
	}
	if err := e.reg.Reconfigure(cfg); err != nil {
		return fmt.Errorf("engine: reload rejected: %w", err)
	}

	old := e.cfg.Swap(cfg)
	d := config.Diff(old, cfg)
	if d.ThresholdsChanged || d.SensorsChanged || d.MinSensorsChanged {
		observe.Logger(context.Background()).Info("engine: configuration swapped",
			"thresholds_changed", d.ThresholdsChanged,
			"min_sensors_changed", d.MinSensorsChanged,
			"sensor_changes", len(d.SensorChanges),
		)
	}
	return nil
}

// Analyze runs every enabled sensor over the decoded mono buffer and returns
// the fused, classified verdict report.
//
// Callers always receive a verdict for structurally valid input — possibly
// UNKNOWN with an insufficient_evidence reason — never a bare error. The
// only hard failure is an empty buffer, which the decoding layer upstream
// should have rejected already.
func (e *Engine) Analyze(ctx context.Context, samples []float32, sampleRate int) (*Report, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, ErrNoAudio
	}

	runID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "engine.Analyze",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("sample_rate", sampleRate),
			attribute.Int("samples", len(samples)),
		),
	)
	defer span.End()

	if e.metrics != nil {
		e.metrics.ActiveRuns.Add(ctx, 1)
		defer e.metrics.ActiveRuns.Add(ctx, -1)
	}

	cfg := e.cfg.Load()
	start := e.now()

	evidence := e.reg.RunAll(ctx, samples, sampleRate)
	env := registry.AnalyzeEnvironment(samples, sampleRate)

	score := fusion.Fuse(cfg, evidence)
	outcome := decision.Classify(decision.ThresholdsFromConfig(cfg), score)

	report := &Report{
		RunID:               runID,
		Verdict:             outcome.Verdict,
		State:               outcome.State,
		RiskLevel:           outcome.RiskLevel,
		Tier:                outcome.Tier,
		Reason:              outcome.Reason,
		GlobalRiskScore:     score.GlobalRiskScore,
		Confidence:          score.Confidence,
		ContributingFactors: score.ContributingFactors,
		Evidence:            evidence,
		Environment:         env,
		Duration:            e.now().Sub(start),
		CreatedAt:           start.UTC(),
	}

	span.SetAttributes(
		attribute.String("verdict", string(report.Verdict)),
		attribute.Float64("global_risk_score", report.GlobalRiskScore),
	)
	if e.metrics != nil {
		e.metrics.RecordRun(ctx, string(report.Verdict), report.Duration.Seconds())
	}

	observe.Logger(ctx).Info("analysis complete",
		"run_id", runID,
		"verdict", report.Verdict,
		"risk_score", report.GlobalRiskScore,
		"confidence", report.Confidence,
		"contributing", score.Contributing,
		"duration", report.Duration,
	)

	e.record(ctx, report)
	return report, nil
}

// Replay re-evaluates an existing evidence set under cfg without running any
// sensor. Used by the replay CLI and shared with calibration semantics: the
// (config → verdict) function is pure.
func Replay(cfg *config.Config, evidence *sensor.ResultSet) (fusion.Score, decision.Outcome) {
	score := fusion.Fuse(cfg, evidence)
	return score, decision.Classify(decision.ThresholdsFromConfig(cfg), score)
}

// record persists the report to the audit store, if one is configured.
// Failures degrade to a warning: auditing must never fail a run.
func (e *Engine) record(ctx context.Context, r *Report) {
	if e.store == nil {
		return
	}
	rec := &audit.Record{
		RunID:           r.RunID,
		Verdict:         r.Verdict,
		State:           r.State,
		RiskLevel:       r.RiskLevel,
		Reason:          r.Reason,
		GlobalRiskScore: r.GlobalRiskScore,
		Confidence:      r.Confidence,
		Factors:         r.ContributingFactors,
		Evidence:        r.Evidence,
		CreatedAt:       r.CreatedAt,
	}
	if err := e.store.Record(ctx, rec); err != nil {
		observe.Logger(ctx).Warn("audit record failed", "run_id", r.RunID, "err", err)
	}
}
