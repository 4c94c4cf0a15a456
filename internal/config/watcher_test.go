package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxsentry/voxsentry/internal/config"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, validYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().TBlock; got != 0.7 {
		t.Errorf("initial t_block = %v, want 0.7", got)
	}
}

func TestWatcher_InvalidInitialConfigFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "t_approve: 0.9\nt_escalate: 0.5\nt_block: 0.1\n")

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config, got nil")
	}
}

func TestWatcher_DetectsPromotion(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, validYAML)

	var reloads atomic.Int32
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		reloads.Add(1)
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime moves even on coarse-grained filesystems.
	time.Sleep(50 * time.Millisecond)
	writeConfigFile(t, path, strings.Replace(validYAML, "t_block: 0.7", "t_block: 0.8", 1))
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	if !waitFor(t, 3*time.Second, func() bool { return reloads.Load() > 0 }) {
		t.Fatal("promoted config was never picked up")
	}
	if got := w.Current().TBlock; got != 0.8 {
		t.Errorf("t_block after reload = %v, want 0.8", got)
	}
}

func TestWatcher_KeepsLastGoodOnInvalidWrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, validYAML)

	var reloads atomic.Int32
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		reloads.Add(1)
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	// Inverted thresholds: parses, but must fail validation and be rejected.
	writeConfigFile(t, path, "t_approve: 0.9\nt_escalate: 0.5\nt_block: 0.1\n")
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	time.Sleep(200 * time.Millisecond)
	if n := reloads.Load(); n != 0 {
		t.Errorf("invalid config triggered %d reloads, want 0", n)
	}
	if got := w.Current().TBlock; got != 0.7 {
		t.Errorf("current t_block = %v, want last-good 0.7", got)
	}
}
