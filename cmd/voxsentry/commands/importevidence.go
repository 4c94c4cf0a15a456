package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/voxsentry/voxsentry/internal/corpus"
	"github.com/voxsentry/voxsentry/pkg/sensor"
)

var importEvidenceDir string

var importEvidenceCmd = &cobra.Command{
	Use:   "import-evidence",
	Short: "Load exported evidence sets into the calibration cache",
	Long: `Load exported evidence sets into the calibration cache.

For each item in the corpus manifest the directory must hold a file
named <item-id>.json containing the JSON "evidence" object of an
analysis report for that item. Once imported, calibrate and sweep
replay the cached evidence without ever re-running sensors.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}

		manifest, err := corpus.LoadManifest(calCorpusPath)
		if err != nil {
			return err
		}

		cache, err := corpus.OpenCache(calCachePath, calNamespace)
		if err != nil {
			return err
		}
		defer cache.Close()

		var imported int
		for _, it := range manifest.Items {
			path := filepath.Join(importEvidenceDir, it.ID+".json")
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("item %q: read evidence: %w", it.ID, err)
			}
			evidence := new(sensor.ResultSet)
			if err := json.Unmarshal(raw, evidence); err != nil {
				return fmt.Errorf("item %q: parse evidence %q: %w", it.ID, path, err)
			}
			if evidence.Len() == 0 {
				return fmt.Errorf("item %q: evidence %q holds no results", it.ID, path)
			}
			if err := cache.Put(it.ID, it.Label, evidence); err != nil {
				return err
			}
			imported++
		}

		fmt.Printf("Imported evidence for %d/%d corpus items into %s (namespace %q)\n",
			imported, len(manifest.Items), calCachePath, calNamespace)
		return nil
	},
}

func init() {
	importEvidenceCmd.Flags().StringVar(&calCorpusPath, "corpus", "", "corpus manifest YAML (required)")
	importEvidenceCmd.Flags().StringVar(&calCachePath, "cache", ".voxsentry-cache", "evidence cache directory")
	importEvidenceCmd.Flags().StringVar(&calNamespace, "cache-namespace", "default", "evidence cache namespace")
	importEvidenceCmd.Flags().StringVar(&importEvidenceDir, "evidence", "", "directory of <item-id>.json evidence files (required)")
	_ = importEvidenceCmd.MarkFlagRequired("corpus")
	_ = importEvidenceCmd.MarkFlagRequired("evidence")
}
