// Command segsim runs the Schelling segregation simulation headless, as a
// live HTTP/WebSocket service, or inspects stored runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/segsim/internal/config"
	"github.com/talgya/segsim/internal/logging"
	"github.com/talgya/segsim/internal/world"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "segsim",
		Short: "Schelling segregation simulation",
		Long: `segsim simulates residents of two kinds on a toroidal grid. Each tick every
resident, in random order, checks whether enough of its neighbors share its
kind and relocates to the first free cell in range if not. With contract mode
on, moves are additionally gated by a logistic mobility curve over the time
spent in the current home.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./segsim.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newCurveCmd(),
		newRunsCmd(),
		newSchemaCmd(),
		newWatchCmd(),
	)
	return rootCmd
}

// loadConfig loads the config named by --config, applies flag overrides,
// validates it and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	applyModelFlags(cmd, cfg)
	if cmd.Flags().Lookup("db") != nil && cmd.Flags().Changed("db") {
		cfg.Storage.Path, _ = cmd.Flags().GetString("db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cmd.ErrOrStderr())
	return cfg, nil
}

// addModelFlags registers per-invocation overrides of the model section.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("seed", 0, "Random seed (0 picks one)")
	cmd.Flags().Int("agents", 0, "Number of residents")
	cmd.Flags().Int("width", 0, "Grid width")
	cmd.Flags().Int("height", 0, "Grid height")
	cmd.Flags().Float64("satisfaction", 0, "Minimum same-kind neighbor fraction to stay")
	cmd.Flags().Bool("contract", false, "Gate moves on the contract-span mobility rate")
	cmd.Flags().String("placement", "", "Initial placement: uniform or clustered")
}

func applyModelFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Lookup("seed") == nil {
		return
	}
	if flags.Changed("seed") {
		cfg.Model.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("agents") {
		cfg.Model.AgentCount, _ = flags.GetInt("agents")
	}
	if flags.Changed("width") {
		cfg.Model.Width, _ = flags.GetInt("width")
	}
	if flags.Changed("height") {
		cfg.Model.Height, _ = flags.GetInt("height")
	}
	if flags.Changed("satisfaction") {
		cfg.Model.SatisfactionThreshold, _ = flags.GetFloat64("satisfaction")
	}
	if flags.Changed("contract") {
		cfg.Model.ContractMode, _ = flags.GetBool("contract")
	}
	if flags.Changed("placement") {
		v, _ := flags.GetString("placement")
		cfg.Model.Placement = world.Placement(v)
	}
}
