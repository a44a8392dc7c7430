package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/segsim/internal/persistence"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Long: `List runs stored in the database given by --db (or storage.path).

Examples:
  segsim runs --db runs.db
  segsim runs show <run-id> --db runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := db.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if runs == nil {
					runs = []persistence.Run{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"runs":        runs,
					"total_count": len(runs),
				})
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs stored.")
				return nil
			}
			for _, r := range runs {
				p := r.Params
				contract := ""
				if p.ContractMode {
					contract = " contract"
				}
				fmt.Fprintf(out, "%s  %s  %dx%d  %s agents  seed %d  %s ticks%s\n",
					r.ID, humanize.Time(r.CreatedAt), p.Width, p.Height,
					humanize.Comma(int64(p.AgentCount)), p.Seed, humanize.Comma(int64(r.Ticks)), contract)
			}
			return nil
		},
	}

	cmd.PersistentFlags().String("db", "", "SQLite file holding the runs")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := db.GetRun(args[0])
			if err != nil {
				return err
			}
			series, err := db.LoadSeries(run.ID)
			if err != nil {
				return fmt.Errorf("load series: %w", err)
			}
			ticks, err := db.SnapshotTicks(run.ID)
			if err != nil {
				return fmt.Errorf("load snapshot ticks: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"run":            run,
					"series":         series,
					"snapshot_ticks": ticks,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s)\n", run.ID, humanize.Time(run.CreatedAt))
			fmt.Fprintf(out, "Grid %dx%d, %s agents, seed %d, %s ticks\n",
				run.Params.Width, run.Params.Height, humanize.Comma(int64(run.Params.AgentCount)),
				run.Params.Seed, humanize.Comma(int64(run.Ticks)))
			if len(series) > 0 {
				fmt.Fprintf(out, "Rate: %s%% -> %s%%\n",
					humanize.Ftoa(round2(series[0])), humanize.Ftoa(round2(series[len(series)-1])))
			}
			fmt.Fprintf(out, "Snapshots at ticks %v\n", ticks)
			return nil
		},
	}
}

// openStore opens the database named by --db or the config's storage path.
func openStore(cmd *cobra.Command) (*persistence.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Path == "" {
		return nil, fmt.Errorf("no database: pass --db or set storage.path")
	}
	return persistence.Open(cfg.Storage.Path)
}
