package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxsentry/voxsentry/internal/calibrate"
	"github.com/voxsentry/voxsentry/internal/config"
	"github.com/voxsentry/voxsentry/internal/corpus"
	"github.com/voxsentry/voxsentry/internal/observe"
)

var (
	calCorpusPath  string
	calCachePath   string
	calArtifactDir string
	calNamespace   string
	calMinPerClass int
	calPasses      int

	sweepSensorID  string
	sweepDirection string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Tune weights and thresholds against a labeled corpus",
	Long: `Search sensor weights and decision thresholds against a labeled corpus.

Sensor evidence must already be cached (keyed by corpus item id); the
search replays cached results only and never runs sensors. The best
candidate config is written as an artifact for operator review — the
live configuration is never modified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manifest, samples, err := loadSamples()
		if err != nil {
			return err
		}

		res, err := calibrate.Calibrate(cfg, manifest.Name, samples, calibrate.Options{
			MinExamplesPerClass: calMinPerClass,
			Passes:              calPasses,
		})
		if errors.Is(err, calibrate.ErrInsufficientCalibrationData) {
			return fmt.Errorf("refusing to calibrate: %w", err)
		}
		if err != nil {
			return err
		}

		path, err := res.WriteArtifact(calArtifactDir)
		if err != nil {
			return err
		}
		observe.DefaultMetrics().CalibrationCandidates.Add(cmd.Context(), 1)

		fmt.Printf("Calibrated against %q (%d samples, %d evaluations)\n",
			manifest.Name, len(samples), res.Evaluations)
		fmt.Printf("  baseline: F1 %.3f  precision %.3f  recall %.3f  escalation %.1f%%\n",
			res.Baseline.F1, res.Baseline.Precision, res.Baseline.Recall, res.Baseline.EscalationRate*100)
		fmt.Printf("  tuned:    F1 %.3f  precision %.3f  recall %.3f  escalation %.1f%%\n",
			res.Tuned.F1, res.Tuned.Precision, res.Tuned.Recall, res.Tuned.EscalationRate*100)
		fmt.Printf("Candidate config written to %s — review and promote manually.\n", path)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Seed a per-sensor threshold from labeled evidence",
	Long: `Sweep one sensor's raw values over a labeled corpus and print the
threshold that balances false positives against false negatives. A
starting point for the sensor's threshold before a full calibration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		dir := config.Direction(sweepDirection)
		if !dir.IsValid() {
			return fmt.Errorf("invalid direction %q", sweepDirection)
		}

		_, samples, err := loadSamples()
		if err != nil {
			return err
		}

		t, err := calibrate.SweepThreshold(sweepSensorID, dir, samples)
		if err != nil {
			return err
		}
		fmt.Printf("Suggested threshold for %s: %.6f\n", sweepSensorID, t)
		return nil
	},
}

// loadSamples loads the corpus manifest and each item's cached evidence.
// Uncached items are a hard error: silently calibrating on a partial corpus
// would skew the metrics.
func loadSamples() (*corpus.Manifest, []calibrate.Sample, error) {
	manifest, err := corpus.LoadManifest(calCorpusPath)
	if err != nil {
		return nil, nil, err
	}

	cache, err := corpus.OpenCache(calCachePath, calNamespace)
	if err != nil {
		return nil, nil, err
	}
	defer cache.Close()

	samples := make([]calibrate.Sample, 0, len(manifest.Items))
	for _, it := range manifest.Items {
		label, rs, err := cache.Get(it.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("item %q has no cached evidence (run import-evidence first): %w", it.ID, err)
		}
		if label != it.Label {
			return nil, nil, fmt.Errorf("item %q: cached label %q disagrees with manifest label %q", it.ID, label, it.Label)
		}
		samples = append(samples, calibrate.Sample{ItemID: it.ID, Label: it.Label, Evidence: rs})
	}
	return manifest, samples, nil
}

func init() {
	for _, c := range []*cobra.Command{calibrateCmd, sweepCmd} {
		c.Flags().StringVar(&calCorpusPath, "corpus", "", "corpus manifest YAML (required)")
		c.Flags().StringVar(&calCachePath, "cache", ".voxsentry-cache", "evidence cache directory")
		c.Flags().StringVar(&calNamespace, "cache-namespace", "default", "evidence cache namespace")
		_ = c.MarkFlagRequired("corpus")
	}

	calibrateCmd.Flags().StringVar(&calArtifactDir, "artifacts", "calibration", "artifact output directory")
	calibrateCmd.Flags().IntVar(&calMinPerClass, "min-per-class", 10, "minimum labeled examples per class")
	calibrateCmd.Flags().IntVar(&calPasses, "passes", 2, "coordinate-descent passes")

	sweepCmd.Flags().StringVar(&sweepSensorID, "sensor", "", "sensor id to sweep (required)")
	sweepCmd.Flags().StringVar(&sweepDirection, "direction", string(config.DirectionRiskIncreases),
		"risk direction of the sensor's raw value")
	_ = sweepCmd.MarkFlagRequired("sensor")
}
