package main

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/talgya/segsim/internal/api"
	"github.com/talgya/segsim/internal/engine"
	"github.com/talgya/segsim/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation in real time behind the HTTP API",
		Long: `Run the simulation in real time and serve its state over HTTP, with a
WebSocket stream of per-tick frames at /api/v1/stream. Runs until interrupted.

Examples:
  segsim serve
  SEGSIM_ADMIN_KEY=secret segsim serve --port 9000 --db runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("interval") {
				cfg.Server.Interval, _ = cmd.Flags().GetDuration("interval")
			}
			speed, _ := cmd.Flags().GetFloat64("speed")

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
				slog.Info("database opened", "path", cfg.Storage.Path)
			}
			rec := newRecorder(db, cfg.Storage.SnapshotEvery)

			ctx, stop := withSignals(cmd.Context())
			defer stop()

			eng := engine.NewEngine()
			eng.Interval = cfg.Server.Interval
			eng.ReportEvery = cfg.Server.ReportEvery
			eng.SetSpeed(speed)

			if cfg.Server.AdminKey == "" {
				slog.Warn("SEGSIM_ADMIN_KEY not set; admin POST endpoints will be disabled")
			}
			srv := &api.Server{
				Sim:      sim,
				Eng:      eng,
				DB:       db,
				Port:     cfg.Server.Port,
				AdminKey: cfg.Server.AdminKey,
				Origins:  cfg.Server.CORSOrigins,
			}

			startRun := func() {
				id, err := rec.begin(sim)
				if err != nil {
					slog.Error("could not start run", "error", err)
					return
				}
				srv.SetRunID(id)
			}
			srv.BeforeReset = func() {
				if err := rec.finish(sim); err != nil {
					slog.Error("could not finish run", "error", err)
				}
				srv.SetRunID("")
			}
			srv.OnReset = func(engine.Params) { startRun() }
			startRun()

			eng.OnTick = func(tick uint64) {
				sim.Step()
				srv.Publish()
				if err := rec.tick(sim, sim.Tick()); err != nil {
					slog.Error("snapshot failed", "tick", tick, "error", err)
				}
			}
			eng.OnReport = func(tick uint64) {
				slog.Info("report",
					"tick", sim.Tick(),
					"rate", sim.SegregationRate(),
					"moved", sim.Stats().Moved,
					"running", sim.Running(),
				)
				if err := rec.flush(sim); err != nil {
					slog.Error("flush failed", "error", err)
				}
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				eng.Run(ctx)
			}()

			serveErr := srv.Start(ctx)
			stop()
			wg.Wait()

			if err := rec.finish(sim); err != nil {
				slog.Error("could not finish run", "error", err)
			}
			return serveErr
		},
	}

	cmd.Flags().Int("port", 0, "HTTP port (overrides server.port)")
	cmd.Flags().Duration("interval", 0, "Tick interval at speed 1 (overrides server.interval)")
	cmd.Flags().Float64("speed", 1, "Initial speed multiplier (0 starts paused)")
	cmd.Flags().String("db", "", "SQLite file to store the run in")
	addModelFlags(cmd)
	return cmd
}
