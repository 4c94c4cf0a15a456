package calibrate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxsentry/voxsentry/internal/config"
)

// artifactSummary is the YAML sidecar written next to a candidate config.
type artifactSummary struct {
	Corpus      string    `yaml:"corpus"`
	CreatedAt   time.Time `yaml:"created_at"`
	Baseline    Metrics   `yaml:"baseline"`
	Tuned       Metrics   `yaml:"tuned"`
	Evaluations int       `yaml:"evaluations"`
	ConfigFile  string    `yaml:"config_file"`
}

// WriteArtifact persists the candidate config and a metrics summary under
// dir, named by timestamp. It returns the candidate config path. The live
// configuration is never touched; promotion is a manual copy by an
// operator.
func (r *Result) WriteArtifact(dir string) (string, error) {
	if r.Config == nil {
		return "", fmt.Errorf("calibrate: result holds no candidate config")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("calibrate: create artifact dir: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	cfgPath := filepath.Join(dir, fmt.Sprintf("candidate-%s.yaml", stamp))
	if err := config.WriteFile(cfgPath, r.Config); err != nil {
		return "", fmt.Errorf("calibrate: write candidate config: %w", err)
	}

	summary := artifactSummary{
		Corpus:      r.Corpus,
		CreatedAt:   time.Now().UTC(),
		Baseline:    r.Baseline,
		Tuned:       r.Tuned,
		Evaluations: r.Evaluations,
		ConfigFile:  filepath.Base(cfgPath),
	}
	raw, err := yaml.Marshal(&summary)
	if err != nil {
		return "", fmt.Errorf("calibrate: marshal summary: %w", err)
	}
	sumPath := filepath.Join(dir, fmt.Sprintf("candidate-%s.summary.yaml", stamp))
	if err := os.WriteFile(sumPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("calibrate: write summary: %w", err)
	}
	return cfgPath, nil
}
