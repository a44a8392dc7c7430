package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCurveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Print the contract-span mobility curve",
		Long: `Sample the logistic mobility curve of the configured model between --from
and --to. The rate is the percentage threshold a resident's draw must not
exceed for a move to be considered in contract mode.

Examples:
  segsim curve
  segsim curve --points 257 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			from, _ := cmd.Flags().GetFloat64("from")
			to, _ := cmd.Flags().GetFloat64("to")
			n, _ := cmd.Flags().GetInt("points")
			if to < from {
				return fmt.Errorf("--to (%g) must not be less than --from (%g)", to, from)
			}
			if n <= 0 {
				return fmt.Errorf("--points must be positive, got %d", n)
			}

			curve := cfg.Model.Mobility
			points := curve.Sample(from, to, n)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"curve":  curve,
					"points": points,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "steepness=%g midpoint=%g scale=%g\n\n", curve.Steepness, curve.Midpoint, curve.Scale)
			fmt.Fprintf(out, "%8s  %10s\n", "span", "rate")
			for _, p := range points {
				bar := strings.Repeat("#", int(p.Probability/curve.Scale*40+0.5))
				fmt.Fprintf(out, "%8.3f  %10.6f  %s\n", p.Span, p.Probability, bar)
			}
			return nil
		},
	}

	cmd.Flags().Float64("from", 0, "First contract span")
	cmd.Flags().Float64("to", 10, "Last contract span")
	cmd.Flags().Int("points", 11, "Number of samples")
	return cmd
}
