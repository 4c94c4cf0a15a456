// Package corpus loads labeled calibration corpora and caches per-item
// sensor evidence so calibration sweeps replay cached results instead of
// re-running sensors.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/voxsentry/voxsentry/internal/config"
)

// Label classifies a corpus item's ground truth.
type Label string

const (
	// LabelReal marks genuine human speech.
	LabelReal Label = "real"
	// LabelSynthetic marks generated or manipulated speech.
	LabelSynthetic Label = "synthetic"
)

// IsValid reports whether l is a known label.
func (l Label) IsValid() bool {
	return l == LabelReal || l == LabelSynthetic
}

// Item is one labeled recording in a calibration corpus.
type Item struct {
	// ID uniquely identifies the item within the corpus.
	ID string `yaml:"id"`

	// Label is the ground-truth class.
	Label Label `yaml:"label"`

	// Path locates the audio file, relative to the manifest.
	Path string `yaml:"path"`

	// Duration optionally records the clip length.
	Duration config.Duration `yaml:"duration,omitempty"`
}

// Manifest is a labeled corpus description loaded from YAML.
type Manifest struct {
	// Name labels the corpus in calibration artifacts.
	Name string `yaml:"name"`

	// SampleRate is the rate, in Hz, all items decode to.
	SampleRate int `yaml:"sample_rate"`

	// Items lists every labeled recording.
	Items []Item `yaml:"items"`

	dir string
}

// LoadManifest reads and validates a corpus manifest from path. Unknown
// YAML keys are rejected to catch typos early.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open manifest: %w", err)
	}
	defer f.Close()

	var m Manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("corpus: parse manifest %q: %w", path, err)
	}
	m.dir = filepath.Dir(path)

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("corpus: manifest %q: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if m.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", m.SampleRate))
	}
	if len(m.Items) == 0 {
		errs = append(errs, errors.New("items must not be empty"))
	}
	seen := make(map[string]bool, len(m.Items))
	for i, it := range m.Items {
		switch {
		case it.ID == "":
			errs = append(errs, fmt.Errorf("item %d: id is required", i))
		case seen[it.ID]:
			errs = append(errs, fmt.Errorf("item %d: duplicate id %q", i, it.ID))
		default:
			seen[it.ID] = true
		}
		if !it.Label.IsValid() {
			errs = append(errs, fmt.Errorf("item %q: invalid label %q", it.ID, it.Label))
		}
		if it.Path == "" {
			errs = append(errs, fmt.Errorf("item %q: path is required", it.ID))
		}
	}
	return errors.Join(errs...)
}

// ItemPath resolves an item's audio path against the manifest directory.
func (m *Manifest) ItemPath(it Item) string {
	if filepath.IsAbs(it.Path) {
		return it.Path
	}
	return filepath.Join(m.dir, it.Path)
}

// CountByLabel returns the number of items per label.
func (m *Manifest) CountByLabel() map[Label]int {
	counts := make(map[Label]int, 2)
	for _, it := range m.Items {
		counts[it.Label]++
	}
	return counts
}

// IDs returns all item ids in a stable sorted order.
func (m *Manifest) IDs() []string {
	ids := make([]string, 0, len(m.Items))
	for _, it := range m.Items {
		ids = append(ids, it.ID)
	}
	sort.Strings(ids)
	return ids
}
