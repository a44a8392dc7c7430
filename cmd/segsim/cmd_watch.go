package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/segsim/internal/observer"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a running server and report its phase",
		Long: `Poll the status and metrics endpoints of a running "segsim serve" and
classify each observation as WARMUP, SORTING, CHURNING, SETTLED or HALTED.

Examples:
  segsim watch --url http://localhost:8765
  segsim watch --every 2s --until-settled`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				url = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
			}
			every, _ := cmd.Flags().GetDuration("every")
			once, _ := cmd.Flags().GetBool("once")
			untilSettled, _ := cmd.Flags().GetBool("until-settled")
			window, _ := cmd.Flags().GetInt("window")
			jsonOut, _ := cmd.Flags().GetBool("json")
			if every <= 0 {
				return fmt.Errorf("--every must be positive, got %s", every)
			}

			obs := observer.New(url)
			if window > 0 {
				obs.Window = window
			}

			ctx, stop := withSignals(cmd.Context())
			defer stop()
			return watch(ctx, obs, cmd.OutOrStdout(), jsonOut, every, once, untilSettled)
		},
	}

	cmd.Flags().String("url", "", "Server base URL (default http://localhost:<server.port>)")
	cmd.Flags().Duration("every", 5*time.Second, "Polling interval")
	cmd.Flags().Int("window", 20, "Trailing metric samples used for triage")
	cmd.Flags().Bool("once", false, "Observe once and exit")
	cmd.Flags().Bool("until-settled", false, "Exit once the run is settled or halted")
	return cmd
}

func watch(ctx context.Context, obs *observer.Observer, out io.Writer, jsonOut bool, every time.Duration, once, untilSettled bool) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		o, err := obs.Observe()
		if err != nil {
			if once {
				return err
			}
			slog.Warn("observation failed", "error", err)
		} else {
			h := observer.Triage(o)
			if err := printObservation(out, jsonOut, o, h); err != nil {
				return err
			}
			if untilSettled && (h.Phase == observer.PhaseSettled || h.Phase == observer.PhaseHalted) {
				return nil
			}
		}
		if once {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printObservation(out io.Writer, jsonOut bool, o *observer.Observation, h *observer.Health) error {
	if jsonOut {
		return json.NewEncoder(out).Encode(map[string]any{
			"tick":   o.Status.Tick,
			"run_id": o.Status.RunID,
			"health": h,
		})
	}
	_, err := fmt.Fprintf(out, "tick %-8s rate %6s%%  trend %+6.2f  moved %-5s %s\n",
		humanize.Comma(int64(o.Status.Tick)),
		humanize.Ftoa(round2(h.Rate)),
		h.Trend,
		humanize.Comma(int64(o.Status.Stats.Moved)),
		h.Phase)
	return err
}
