// Command voxsentry is the operator CLI for the VoxSentry voice
// authenticity engine.
//
// Usage:
//
//	voxsentry [flags] <command> [args]
//
// Commands:
//
//	check-config    - Validate a configuration file
//	replay          - Re-classify an exported evidence set under a config
//	calibrate       - Tune weights and thresholds against a labeled corpus
//	sweep           - Seed a per-sensor threshold from labeled evidence
//	import-evidence - Load exported evidence sets into the calibration cache
package main

import (
	"fmt"
	"os"

	"github.com/voxsentry/voxsentry/cmd/voxsentry/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
