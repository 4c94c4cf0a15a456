package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file and print the effective sensor table.

Exits non-zero when the file fails validation, making it suitable as a
pre-promotion gate for calibration candidates.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Config %s is valid.\n\n", configPath)
		fmt.Printf("Thresholds: approve < %.2f ≤ escalate < %.2f ≤ block\n",
			cfg.TApprove, cfg.TBlock)
		fmt.Printf("Escalation tier split at %.2f, minimum determinate sensors: %d\n\n",
			cfg.TEscalate, cfg.MinDeterminateSensors)

		ids := make([]string, 0, len(cfg.Sensors))
		for id := range cfg.Sensors {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SENSOR\tENABLED\tCATEGORY\tWEIGHT\tTHRESHOLD\tDIRECTION")
		for _, id := range ids {
			sc := cfg.Sensors[id]
			weight, threshold := "-", "-"
			if sc.Weight != nil {
				weight = fmt.Sprintf("%.2f", *sc.Weight)
			}
			if sc.Threshold != nil {
				threshold = fmt.Sprintf("%.3f", *sc.Threshold)
			}
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%s\n",
				id, sc.Enabled, sc.Category, weight, threshold, sc.Direction)
		}
		return w.Flush()
	},
}
