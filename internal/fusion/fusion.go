// Package fusion turns the per-sensor results of one analysis run into a
// single composite risk score with an explainable factor breakdown.
//
// Heterogeneous sensor outputs — booleans, continuous value/threshold pairs,
// evidence-only diagnostics — are normalised onto a common [0,1] axis
// representing probability of synthetic origin, then combined as a weighted
// average whose weights are re-normalised over the sensors that actually
// produced a determinate result this run. The weighted average IS the risk
// score handed to the decision classifier: no post-hoc scaling of any kind
// is applied between the two, because exactly such a multiplier once diluted
// high-risk evidence into an approval.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/voxsentry/voxsentry/internal/config"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// Factor is one sensor's contribution to the composite risk score.
type Factor struct {
	// SensorID identifies the contributing sensor.
	SensorID string `json:"sensor_id"`

	// Weight is the sensor's re-normalised weight for this run (w_i / Σw),
	// so that weights of contributing sensors sum to 1.
	Weight float64 `json:"weight"`

	// NormalizedScore is the sensor's risk score on the common [0,1] axis.
	NormalizedScore float64 `json:"normalized_score"`

	// Contribution is Weight × NormalizedScore. Contributions across all
	// factors sum to the global risk score.
	Contribution float64 `json:"contribution"`

	// Reason echoes the sensor's reported reason for explainability.
	Reason string `json:"reason,omitempty"`
}

// Score is the fused risk assessment for one run, before classification.
type Score struct {
	// GlobalRiskScore is the weighted average of contributing sensors'
	// normalised scores, in [0,1]. Meaningless when Contributing is zero.
	GlobalRiskScore float64 `json:"global_risk_score"`

	// Confidence measures agreement among contributing sensors (1 minus the
	// normalised spread of their scores), not the risk score itself: sensors
	// can disagree sharply even when the mean is decisive.
	Confidence float64 `json:"confidence"`

	// ContributingFactors lists each contributing sensor sorted by
	// contribution descending (sensor id ascending on ties, for determinism).
	ContributingFactors []Factor `json:"contributing_factors"`

	// Contributing is the number of weighted sensors that produced a
	// determinate result this run. The classifier compares it against the
	// configured minimum.
	Contributing int `json:"contributing_sensors"`
}

// Fuse computes the composite risk score for one run.
//
// A sensor contributes if and only if it has a weighted category
// (prosecution or defense) in cfg and reported a determinate outcome.
// Indeterminate sensors are excluded from both the weighted sum and the
// weight denominator — removing one never changes any other sensor's
// normalised score. Diagnostic sensors never contribute.
func Fuse(cfg *config.Config, rs *sensor.ResultSet) Score {
	var (
		weightSum   float64
		weightedSum float64
		factors     []Factor
	)

	for _, res := range rs.Results() {
		sc, ok := cfg.Sensors[res.SensorID]
		if !ok || !sc.Category.Weighted() {
			continue
		}
		if !res.Determinate() {
			continue
		}

		score, ok := NormalizedScore(sc, res)
		if !ok {
			continue
		}

		w := sc.WeightValue()
		weightSum += w
		weightedSum += w * score
		factors = append(factors, Factor{
			SensorID:        res.SensorID,
			Weight:          w, // re-normalised below once Σw is known
			NormalizedScore: score,
			Reason:          res.Reason,
		})
	}

	out := Score{Contributing: len(factors)}
	if len(factors) == 0 || weightSum == 0 {
		// No contributing evidence. The classifier turns this into UNKNOWN;
		// fusion must not invent a neutral score.
		out.ContributingFactors = []Factor{}
		return out
	}

	// The weighted average is the risk score, full stop.
	out.GlobalRiskScore = weightedSum / weightSum

	for i := range factors {
		factors[i].Weight /= weightSum
		factors[i].Contribution = factors[i].Weight * factors[i].NormalizedScore
	}
	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Contribution != factors[j].Contribution {
			return factors[i].Contribution > factors[j].Contribution
		}
		return factors[i].SensorID < factors[j].SensorID
	})
	out.ContributingFactors = factors

	out.Confidence = confidence(factors)
	return out
}

// NormalizedScore maps one determinate result onto the [0,1] risk axis.
//
// Sensors that report a continuous value/threshold pair are mapped piecewise
// linearly using the config-declared direction, with the midpoint 0.5 pinned
// at the sensor's own threshold. Boolean-only sensors map failed→1.0 and
// passed→0.0. Orientation is applied exactly once: direction (or pass/fail
// polarity) already encodes it, so defense-category sensors are never
// inverted a second time.
//
// The second return value is false when the result cannot be scored (no
// usable value and no determinate outcome — not reachable for results the
// registry produced).
func NormalizedScore(sc config.SensorConfig, res sensor.Result) (float64, bool) {
	if res.Value != nil && res.Threshold != nil && *res.Threshold > 0 && sc.Direction != "" {
		ratio := *res.Value / (2 * *res.Threshold)
		switch sc.Direction {
		case config.DirectionRiskIncreases:
			return clamp01(ratio), true
		case config.DirectionRiskDecreases:
			return clamp01(1 - ratio), true
		}
	}

	switch res.Outcome {
	case sensor.OutcomeFailed:
		return 1.0, true
	case sensor.OutcomePassed:
		return 0.0, true
	}
	return 0, false
}

// confidence derives sensor agreement from the spread of normalised scores:
// 1 − 2σ, where σ is the population standard deviation (at most 0.5 for
// values in [0,1]). A single contributing sensor has zero spread and full
// agreement with itself.
func confidence(factors []Factor) float64 {
	n := float64(len(factors))
	if n == 0 {
		return 0
	}

	var mean float64
	for _, f := range factors {
		mean += f.NormalizedScore
	}
	mean /= n

	var variance float64
	for _, f := range factors {
		d := f.NormalizedScore - mean
		variance += d * d
	}
	variance /= n

	return clamp01(1 - 2*math.Sqrt(variance))
}

// FormatEvidence renders a Score into the human-readable summary used in
// operator reports: the global score followed by the top contributing
// factors with their weights and findings.
func FormatEvidence(s Score, topN int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Global risk score: %.1f%% (confidence %.1f%%)\n", s.GlobalRiskScore*100, s.Confidence*100)

	if len(s.ContributingFactors) == 0 {
		b.WriteString("No contributing sensors.")
		return b.String()
	}

	b.WriteString("Primary contributing factors:\n")
	if topN <= 0 || topN > len(s.ContributingFactors) {
		topN = len(s.ContributingFactors)
	}
	for i, f := range s.ContributingFactors[:topN] {
		fmt.Fprintf(&b, "%d. %s (weight %.0f%%, contribution %.0f%%)\n",
			i+1, f.SensorID, f.Weight*100, f.Contribution*100)
		if f.Reason != "" {
			fmt.Fprintf(&b, "   finding: %s\n", f.Reason)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
