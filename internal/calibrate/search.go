package calibrate

import (
	"fmt"
	"math"
	"sort"

	"github.com/voxsentry/voxsentry/internal/config"
	"github.com/voxsentry/voxsentry/internal/corpus"
	"github.com/voxsentry/voxsentry/internal/decision"
	"github.com/voxsentry/voxsentry/internal/fusion"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

// Options tunes the calibration search.
type Options struct {
	// MinExamplesPerClass is the guardrail: each label needs at least this
	// many corpus examples before calibration runs at all.
	MinExamplesPerClass int

	// WeightGrid lists candidate per-sensor weights. Defaults to a coarse
	// grid around 1.0.
	WeightGrid []float64

	// ThresholdGrid lists candidate decision thresholds. Defaults to 0.05
	// steps across (0,1).
	ThresholdGrid []float64

	// Passes is how many coordinate-descent sweeps to run. Defaults to 2.
	Passes int
}

func (o *Options) applyDefaults() {
	if o.MinExamplesPerClass <= 0 {
		o.MinExamplesPerClass = 10
	}
	if len(o.WeightGrid) == 0 {
		o.WeightGrid = []float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 2.0}
	}
	if len(o.ThresholdGrid) == 0 {
		for t := 0.05; t < 0.999; t += 0.05 {
			o.ThresholdGrid = append(o.ThresholdGrid, math.Round(t*100)/100)
		}
	}
	if o.Passes <= 0 {
		o.Passes = 2
	}
}

// Result is the outcome of one calibration run: a candidate configuration
// with its quality measured against the corpus it was tuned on.
type Result struct {
	// Config is the candidate configuration. It is never applied
	// automatically; an operator promotes it.
	Config *config.Config `yaml:"-" json:"-"`

	// Corpus names the corpus the candidate was tuned against.
	Corpus string `yaml:"corpus" json:"corpus"`

	// Baseline measures the starting configuration.
	Baseline Metrics `yaml:"baseline" json:"baseline"`

	// Tuned measures the candidate configuration.
	Tuned Metrics `yaml:"tuned" json:"tuned"`

	// Evaluations counts how many candidate configs the search scored.
	Evaluations int `yaml:"evaluations" json:"evaluations"`
}

// configCandidate scores evidence under one candidate config using the
// production fusion and decision path.
type configCandidate struct {
	cfg *config.Config
}

func (c configCandidate) Score(ev *sensor.ResultSet) (fusion.Score, decision.Outcome) {
	s := fusion.Fuse(c.cfg, ev)
	return s, decision.Classify(decision.ThresholdsFromConfig(c.cfg), s)
}

// Calibrate runs a coordinate-descent search over per-sensor weights and the
// three decision thresholds, starting from base. It returns the best
// candidate found, which may equal the baseline when no move improves it.
//
// Returns [ErrInsufficientCalibrationData] without producing any candidate
// when either class falls below the per-class minimum.
func Calibrate(base *config.Config, corpusName string, samples []Sample, opts Options) (*Result, error) {
	opts.applyDefaults()
	if err := checkGuardrail(samples, opts.MinExamplesPerClass); err != nil {
		return nil, err
	}

	best := base.Clone()
	res := &Result{
		Corpus:   corpusName,
		Baseline: Evaluate(configCandidate{base}, samples),
	}
	bestMetrics := res.Baseline
	res.Evaluations = 1

	evaluate := func(cand *config.Config) bool {
		res.Evaluations++
		m := Evaluate(configCandidate{cand}, samples)
		if Better(m, bestMetrics) {
			best = cand
			bestMetrics = m
			return true
		}
		return false
	}

	sensorIDs := weightedSensorIDs(base)
	for pass := 0; pass < opts.Passes; pass++ {
		improved := false

		for _, id := range sensorIDs {
			for _, w := range opts.WeightGrid {
				cand := best.Clone()
				sc := cand.Sensors[id]
				sc.Weight = &w
				cand.Sensors[id] = sc
				if evaluate(cand) {
					improved = true
				}
			}
		}

		for _, move := range []func(*config.Config, float64){
			func(c *config.Config, t float64) { c.TApprove = t },
			func(c *config.Config, t float64) { c.TEscalate = t },
			func(c *config.Config, t float64) { c.TBlock = t },
		} {
			for _, t := range opts.ThresholdGrid {
				cand := best.Clone()
				move(cand, t)
				if config.Validate(cand) != nil {
					continue // threshold ordering violated
				}
				if evaluate(cand) {
					improved = true
				}
			}
		}

		if !improved {
			break
		}
	}

	res.Config = best
	res.Tuned = bestMetrics
	return res, nil
}

// weightedSensorIDs returns the enabled prosecution and defense sensor ids
// in sorted order for a deterministic search.
func weightedSensorIDs(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Sensors))
	for id, sc := range cfg.Sensors {
		if sc.Enabled && sc.Category.Weighted() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SweepThreshold finds the per-sensor raw-value threshold that balances the
// false positive and false negative rates over the labeled samples — an
// equal-error-rate seed operators can paste into a sensor's config before a
// full calibration run.
//
// Only samples where the sensor reported a determinate result with a raw
// value participate. Returns an error when fewer than two distinct values or
// only one class is represented.
func SweepThreshold(sensorID string, dir config.Direction, samples []Sample) (float64, error) {
	type point struct {
		value     float64
		synthetic bool
	}
	var pts []point
	for _, s := range samples {
		r, ok := s.Evidence.Get(sensorID)
		if !ok || !r.Outcome.Determinate() || r.Value == nil {
			continue
		}
		pts = append(pts, point{*r.Value, s.Label == corpus.LabelSynthetic})
	}
	if len(pts) < 2 {
		return 0, fmt.Errorf("calibrate: sensor %q: not enough valued samples to sweep", sensorID)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].value < pts[j].value })

	var positives, negatives int
	for _, p := range pts {
		if p.synthetic {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0, fmt.Errorf("calibrate: sensor %q: both classes required to sweep", sensorID)
	}

	bestT := pts[0].value
	bestGap := math.Inf(1)
	for i := 0; i < len(pts)-1; i++ {
		if pts[i].value == pts[i+1].value {
			continue
		}
		t := (pts[i].value + pts[i+1].value) / 2

		var fp, fn int
		for _, p := range pts {
			flagged := p.value > t
			if dir == config.DirectionRiskDecreases {
				flagged = p.value < t
			}
			switch {
			case flagged && !p.synthetic:
				fp++
			case !flagged && p.synthetic:
				fn++
			}
		}
		fpr := float64(fp) / float64(negatives)
		fnr := float64(fn) / float64(positives)
		if gap := math.Abs(fpr - fnr); gap < bestGap {
			bestGap = gap
			bestT = t
		}
	}
	return bestT, nil
}
