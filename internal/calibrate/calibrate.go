// Package calibrate searches sensor weights and decision thresholds against
// a labeled corpus and emits candidate configurations as artifacts.
//
// Calibration never touches the live configuration: its output is a config
// file an operator reviews and promotes by hand. The search replays cached
// sensor evidence through the same fusion and classification code the live
// path uses, so an offline score is exactly the score production would have
// produced.
package calibrate

import (
	"errors"
	"fmt"
	"math"

	"github.com/voxsentry/voxsentry/internal/corpus"
	"github.com/voxsentry/voxsentry/internal/decision"
	"github.com/voxsentry/voxsentry/internal/fusion"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// ErrInsufficientCalibrationData is returned when the corpus does not hold
// enough labeled examples of each class to calibrate safely.
var ErrInsufficientCalibrationData = errors.New("calibrate: insufficient labeled examples")

// Sample pairs one corpus item's ground truth with its sensor evidence.
type Sample struct {
	ItemID   string
	Label    corpus.Label
	Evidence *sensor.ResultSet
}

// Metrics quantifies classifier quality over a labeled sample set, with
// synthetic as the positive class.
type Metrics struct {
	// Precision is TP / (TP + FP): of everything blocked, how much was
	// actually synthetic.
	Precision float64 `yaml:"precision" json:"precision"`

	// Recall is TP / (TP + FN): of everything synthetic, how much was
	// blocked.
	Recall float64 `yaml:"recall" json:"recall"`

	// F1 is the harmonic mean of precision and recall.
	F1 float64 `yaml:"f1" json:"f1"`

	// EscalationRate is the fraction of samples routed to human review.
	EscalationRate float64 `yaml:"escalation_rate" json:"escalation_rate"`

	// TruePositives counts synthetic samples blocked.
	TruePositives int `yaml:"true_positives" json:"true_positives"`
	// FalsePositives counts real samples blocked.
	FalsePositives int `yaml:"false_positives" json:"false_positives"`
	// FalseNegatives counts synthetic samples approved.
	FalseNegatives int `yaml:"false_negatives" json:"false_negatives"`
	// TrueNegatives counts real samples approved.
	TrueNegatives int `yaml:"true_negatives" json:"true_negatives"`
}

// Candidate scores one evidence set under some parameterisation. Candidates
// built by the search always route through the production fusion and
// decision code, so offline metrics match what the live path would do.
type Candidate interface {
	Score(ev *sensor.ResultSet) (fusion.Score, decision.Outcome)
}

// Evaluate classifies every sample under cand and tallies quality metrics.
//
// Escalated samples count toward the escalation rate but not toward the
// confusion matrix: routing to a human is neither a hit nor a miss.
func Evaluate(cand Candidate, samples []Sample) Metrics {
	var m Metrics
	escalated := 0
	for _, s := range samples {
		_, out := cand.Score(s.Evidence)
		switch out.State {
		case decision.StateEscalate:
			escalated++
		case decision.StateBlock:
			if s.Label == corpus.LabelSynthetic {
				m.TruePositives++
			} else {
				m.FalsePositives++
			}
		case decision.StateApprove:
			if s.Label == corpus.LabelSynthetic {
				m.FalseNegatives++
			} else {
				m.TrueNegatives++
			}
		}
	}
	if n := len(samples); n > 0 {
		m.EscalationRate = float64(escalated) / float64(n)
	}
	if d := m.TruePositives + m.FalsePositives; d > 0 {
		m.Precision = float64(m.TruePositives) / float64(d)
	}
	if d := m.TruePositives + m.FalseNegatives; d > 0 {
		m.Recall = float64(m.TruePositives) / float64(d)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// Better reports whether a improves on b: higher F1 wins, ties break toward
// the lower escalation rate.
func Better(a, b Metrics) bool {
	if math.Abs(a.F1-b.F1) > 1e-12 {
		return a.F1 > b.F1
	}
	return a.EscalationRate < b.EscalationRate-1e-12
}

// checkGuardrail verifies each class meets the per-class example minimum.
func checkGuardrail(samples []Sample, minPerClass int) error {
	counts := make(map[corpus.Label]int, 2)
	for _, s := range samples {
		counts[s.Label]++
	}
	var errs []error
	for _, label := range []corpus.Label{corpus.LabelReal, corpus.LabelSynthetic} {
		if counts[label] < minPerClass {
			errs = append(errs, fmt.Errorf("%w: %d %q examples, need at least %d",
				ErrInsufficientCalibrationData, counts[label], label, minPerClass))
		}
	}
	return errors.Join(errs...)
}
