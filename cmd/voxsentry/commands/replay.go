package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxsentry/voxsentry/internal/engine"
	"github.com/voxsentry/voxsentry/internal/fusion"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

var (
	replayFile string
	replayJSON bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-classify an exported evidence set under a config",
	Long: `Re-classify an exported evidence set under the current config.

The evidence file is the JSON "evidence" object of an analysis report.
Because fusion and classification are pure functions of config and
evidence, replay reproduces exactly the verdict the engine would emit —
useful for investigating a disputed decision or previewing a candidate
config against a known case.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(replayFile)
		if err != nil {
			return fmt.Errorf("read evidence: %w", err)
		}
		evidence := new(sensor.ResultSet)
		if err := json.Unmarshal(raw, evidence); err != nil {
			return fmt.Errorf("parse evidence %q: %w", replayFile, err)
		}

		score, outcome := engine.Replay(cfg, evidence)

		if replayJSON {
			out, err := json.MarshalIndent(map[string]any{
				"verdict":    outcome.Verdict,
				"state":      outcome.State,
				"risk_level": outcome.RiskLevel,
				"reason":     outcome.Reason,
				"score":      score,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Verdict: %s (%s, risk %s) — %s\n",
			outcome.Verdict, outcome.State, outcome.RiskLevel, outcome.Reason)
		fmt.Print(fusion.FormatEvidence(score, 5))
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "evidence JSON file (required)")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "emit the full result as JSON")
	_ = replayCmd.MarkFlagRequired("file")
}
