package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxsentry/voxsentry/internal/audit"
	"github.com/voxsentry/voxsentry/internal/config"
	"github.com/voxsentry/voxsentry/internal/decision"
	"github.com/voxsentry/voxsentry/internal/engine"
	"github.com/voxsentry/voxsentry/internal/registry"
	"github.com/voxsentry/voxsentry/pkg/sensor"
	"github.com/voxsentry/voxsentry/pkg/sensor/mock"
)

var testSamples = make([]float32, 16000)

// captureStore records audit writes, optionally failing every call.
type captureStore struct {
	records []*audit.Record
	err     error
}

func (s *captureStore) Record(_ context.Context, rec *audit.Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *captureStore) Get(context.Context, string) (*audit.Record, error) { return nil, nil }

func (s *captureStore) Recent(context.Context, int) ([]*audit.Record, error) { return nil, nil }

func testConfig(ids ...string) *config.Config {
	cfg := &config.Config{
		LogLevel:              config.LogError,
		Sensors:               make(map[string]config.SensorConfig, len(ids)),
		TApprove:              0.3,
		TEscalate:             0.5,
		TBlock:                0.7,
		MinDeterminateSensors: 1,
		Runtime: config.RuntimeConfig{
			Concurrency:   4,
			SensorTimeout: config.Duration(200 * time.Millisecond),
			RunDeadline:   config.Duration(time.Second),
		},
	}
	for _, id := range ids {
		cfg.Sensors[id] = config.SensorConfig{
			Enabled:   true,
			Category:  config.CategoryProsecution,
			Weight:    sensor.Float(1.0),
			Threshold: sensor.Float(0.5),
			Direction: config.DirectionRiskIncreases,
		}
	}
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, sensors map[string]sensor.Sensor, opts ...engine.Option) *engine.Engine {
	t.Helper()
	reg := registry.New(cfg.Runtime)
	for id, s := range sensors {
		if err := reg.Register(s, cfg.Sensors[id]); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	e, err := engine.New(cfg, reg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestAnalyze_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := testConfig("breath", "spectral")
	e := newEngine(t, cfg, map[string]sensor.Sensor{
		"breath":   mock.Static("breath", sensor.OutcomeFailed, 0.9, 0.5),
		"spectral": mock.Static("spectral", sensor.OutcomeFailed, 0.85, 0.5),
	})

	report, err := e.Analyze(context.Background(), testSamples, 16000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.Verdict != decision.VerdictSynthetic || report.State != decision.StateBlock {
		t.Errorf("verdict/state = %s/%s, want SYNTHETIC/BLOCK", report.Verdict, report.State)
	}
	if report.GlobalRiskScore < 0.7 {
		t.Errorf("GlobalRiskScore = %v, want >= t_block", report.GlobalRiskScore)
	}
	if report.Evidence.Len() != 2 {
		t.Errorf("Evidence.Len = %d, want 2", report.Evidence.Len())
	}
	if len(report.ContributingFactors) != 2 {
		t.Errorf("ContributingFactors = %d, want 2", len(report.ContributingFactors))
	}
	if report.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
	if report.Duration < 0 {
		t.Errorf("Duration = %v, want >= 0", report.Duration)
	}
}

func TestAnalyze_CleanSignalApproves(t *testing.T) {
	t.Parallel()

	cfg := testConfig("breath", "spectral")
	e := newEngine(t, cfg, map[string]sensor.Sensor{
		"breath":   mock.Static("breath", sensor.OutcomePassed, 0.1, 0.5),
		"spectral": mock.Static("spectral", sensor.OutcomePassed, 0.05, 0.5),
	})

	report, err := e.Analyze(context.Background(), testSamples, 16000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Verdict != decision.VerdictReal || report.State != decision.StateApprove {
		t.Errorf("verdict/state = %s/%s, want REAL/APPROVE", report.Verdict, report.State)
	}
	if report.RiskLevel != decision.RiskLow {
		t.Errorf("RiskLevel = %s, want LOW", report.RiskLevel)
	}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	t.Parallel()

	cfg := testConfig("breath")
	e := newEngine(t, cfg, map[string]sensor.Sensor{
		"breath": mock.Static("breath", sensor.OutcomePassed, 0.1, 0.5),
	})

	if _, err := e.Analyze(context.Background(), nil, 16000); !errors.Is(err, engine.ErrNoAudio) {
		t.Errorf("empty buffer err = %v, want ErrNoAudio", err)
	}
	if _, err := e.Analyze(context.Background(), testSamples, 0); !errors.Is(err, engine.ErrNoAudio) {
		t.Errorf("zero sample rate err = %v, want ErrNoAudio", err)
	}
}

func TestNew_RejectsUnknownSensor(t *testing.T) {
	t.Parallel()

	cfg := testConfig("breath", "ghost")
	reg := registry.New(cfg.Runtime)
	if err := reg.Register(mock.Static("breath", sensor.OutcomePassed, 0.1, 0.5), cfg.Sensors["breath"]); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := engine.New(cfg, reg); err == nil {
		t.Fatal("New accepted a config naming an unregistered sensor")
	}
}

func TestReload_RejectsInvalidConfigKeepsOld(t *testing.T) {
	t.Parallel()

	cfg := testConfig("breath")
	e := newEngine(t, cfg, map[string]sensor.Sensor{
		"breath": mock.Static("breath", sensor.OutcomePassed, 0.1, 0.5),
	})

	bad := cfg.Clone()
	bad.TApprove, bad.TBlock = 0.9, 0.2 // inverted ordering
	if err := e.Reload(bad); err == nil {
		t.Fatal("Reload accepted an invalid config")
	} else if !strings.Contains(err.Error(), "reload rejected") {
		t.Errorf("error = %q, want 'reload rejected'", err.Error())
	}
	if e.Config().TBlock != 0.7 {
		t.Errorf("TBlock = %v after rejected reload, want 0.7", e.Config().TBlock)
	}
}

func TestReload_SwapsConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("breath")
	e := newEngine(t, cfg, map[string]sensor.Sensor{
		"breath": mock.Static("breath", sensor.OutcomeFailed, 0.9, 0.5),
	})

	next := cfg.Clone()
	next.TBlock = 0.95
	if err := e.Reload(next); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if e.Config().TBlock != 0.95 {
		t.Errorf("TBlock = %v, want 0.95", e.Config().TBlock)
	}

	// The same evidence that blocked under the old thresholds now escalates.
	report, err := e.Analyze(context.Background(), testSamples, 16000)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.State != decision.StateEscalate {
		t.Errorf("state = %s after raising t_block, want ESCALATE", report.State)
	}
}

func TestAnalyze_AuditBestEffort(t *testing.T) {
	t.Parallel()

	t.Run("records verdict", func(t *testing.T) {
		t.Parallel()
		store := &captureStore{}
		cfg := testConfig("breath")
		e := newEngine(t, cfg, map[string]sensor.Sensor{
			"breath": mock.Static("breath", sensor.OutcomeFailed, 0.9, 0.5),
		}, engine.WithAuditStore(store))

		report, err := e.Analyze(context.Background(), testSamples, 16000)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if len(store.records) != 1 {
			t.Fatalf("store has %d records, want 1", len(store.records))
		}
		if store.records[0].RunID != report.RunID {
			t.Errorf("stored RunID = %q, report RunID = %q", store.records[0].RunID, report.RunID)
		}
		if store.records[0].Verdict != report.Verdict {
			t.Errorf("stored verdict = %s, report verdict = %s", store.records[0].Verdict, report.Verdict)
		}
	})

	t.Run("store failure does not fail the run", func(t *testing.T) {
		t.Parallel()
		store := &captureStore{err: errors.New("connection refused")}
		cfg := testConfig("breath")
		e := newEngine(t, cfg, map[string]sensor.Sensor{
			"breath": mock.Static("breath", sensor.OutcomePassed, 0.1, 0.5),
		}, engine.WithAuditStore(store))

		report, err := e.Analyze(context.Background(), testSamples, 16000)
		if err != nil {
			t.Fatalf("Analyze failed because of the audit store: %v", err)
		}
		if report.Verdict != decision.VerdictReal {
			t.Errorf("verdict = %s, want REAL", report.Verdict)
		}
	})
}

func TestReplay_Pure(t *testing.T) {
	t.Parallel()

	cfg := testConfig("breath", "spectral")
	evidence, err := sensor.NewResultSet(
		sensor.Result{SensorID: "breath", Outcome: sensor.OutcomeFailed, Value: sensor.Float(0.9), Threshold: sensor.Float(0.5)},
		sensor.Result{SensorID: "spectral", Outcome: sensor.OutcomePassed, Value: sensor.Float(0.1), Threshold: sensor.Float(0.5)},
	)
	if err != nil {
		t.Fatalf("NewResultSet: %v", err)
	}

	first, firstOut := engine.Replay(cfg, evidence)
	for range 50 {
		score, out := engine.Replay(cfg, evidence)
		if score.GlobalRiskScore != first.GlobalRiskScore || out.State != firstOut.State {
			t.Fatalf("replay diverged: %v/%s vs %v/%s",
				score.GlobalRiskScore, out.State, first.GlobalRiskScore, firstOut.State)
		}
	}
}
