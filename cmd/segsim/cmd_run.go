package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/segsim/internal/engine"
	"github.com/talgya/segsim/internal/persistence"
)

// runSummary is the result of a headless run.
type runSummary struct {
	RunID       string    `json:"run_id,omitempty"`
	Seed        int64     `json:"seed"`
	Ticks       uint64    `json:"ticks"`
	Moves       int       `json:"moves"`
	InitialRate float64   `json:"initial_rate"`
	FinalRate   float64   `json:"final_rate"`
	Series      []float64 `json:"series"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation headless for a number of ticks",
		Long: `Run the simulation as fast as possible for --ticks ticks and print the
segregation rate summary. With --db (or storage.path in the config) the run,
its series and snapshots are stored.

Examples:
  segsim run --ticks 200
  segsim run --ticks 1000 --contract --db runs.db --snapshot-every 100
  segsim run --ticks 50 --seed 7 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ticks, _ := cmd.Flags().GetUint64("ticks")
			if cmd.Flags().Changed("snapshot-every") {
				cfg.Storage.SnapshotEvery, _ = cmd.Flags().GetInt("snapshot-every")
			}
			if cfg.Storage.SnapshotEvery < 0 {
				return fmt.Errorf("snapshot-every must be non-negative")
			}

			sim, err := engine.New(cfg.Params())
			if err != nil {
				return err
			}

			var db *persistence.DB
			if cfg.Storage.Path != "" {
				db, err = persistence.Open(cfg.Storage.Path)
				if err != nil {
					return err
				}
				defer db.Close()
			}
			rec := newRecorder(db, cfg.Storage.SnapshotEvery)
			runID, err := rec.begin(sim)
			if err != nil {
				return err
			}

			ctx, stop := withSignals(cmd.Context())
			defer stop()

			summary := runSummary{
				RunID:       runID,
				Seed:        sim.Seed(),
				InitialRate: sim.SegregationRate(),
			}

			eng := engine.NewEngine()
			eng.Interval = 0
			eng.MaxTicks = ticks
			eng.ReportEvery = cfg.Server.ReportEvery
			eng.OnTick = func(tick uint64) {
				sim.Step()
				summary.Moves += sim.Stats().Moved
				if err := rec.tick(sim, tick); err != nil {
					slog.Error("snapshot failed", "tick", tick, "error", err)
				}
			}
			eng.OnReport = func(tick uint64) {
				slog.Info("report", "tick", tick, "rate", fmt.Sprintf("%.2f", sim.SegregationRate()), "moved", sim.Stats().Moved)
				if err := rec.flush(sim); err != nil {
					slog.Error("flush failed", "tick", tick, "error", err)
				}
			}
			if ticks > 0 {
				eng.Run(ctx)
			}

			if err := rec.finish(sim); err != nil {
				return err
			}

			summary.Ticks = sim.Tick()
			summary.FinalRate = sim.SegregationRate()
			summary.Series = sim.Series()

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
			}
			printSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().Uint64("ticks", 100, "Number of ticks to run")
	cmd.Flags().String("db", "", "SQLite file to store the run in")
	cmd.Flags().Int("snapshot-every", 0, "Store a grid snapshot every N ticks (0 = final only)")
	addModelFlags(cmd)
	return cmd
}

func printSummary(cmd *cobra.Command, s runSummary) {
	out := cmd.OutOrStdout()
	if s.RunID != "" {
		fmt.Fprintf(out, "Run %s\n", s.RunID)
	}
	fmt.Fprintf(out, "Seed:          %d\n", s.Seed)
	fmt.Fprintf(out, "Ticks:         %s\n", humanize.Comma(int64(s.Ticks)))
	fmt.Fprintf(out, "Moves:         %s\n", humanize.Comma(int64(s.Moves)))
	fmt.Fprintf(out, "Initial rate:  %s%%\n", humanize.Ftoa(round2(s.InitialRate)))
	fmt.Fprintf(out, "Final rate:    %s%%\n", humanize.Ftoa(round2(s.FinalRate)))

	if len(s.Series) == 0 {
		return
	}
	lo, hi := s.Series[0], s.Series[0]
	for _, v := range s.Series {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	fmt.Fprintf(out, "Series range:  %s%% .. %s%% over %s values\n",
		humanize.Ftoa(round2(lo)), humanize.Ftoa(round2(hi)), humanize.Comma(int64(len(s.Series))))
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
