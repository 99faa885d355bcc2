package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warehouse-sim/warehouse-sim/config"
	"github.com/warehouse-sim/warehouse-sim/logging"
	"github.com/warehouse-sim/warehouse-sim/sim"
	"github.com/warehouse-sim/warehouse-sim/sim/oracle"
)

var (
	configPath string // Path to the YAML config file
	logLevel   string // Log verbosity level, overrides the config file when set
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "warehouse-sim",
	Short: "Discrete-event coordination engine for warehouse fleets",
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies CLI overrides, sets up
// logging, and builds the coordinator with its layout and journal sink.
func loadConfig() (*config.Config, *sim.Coordinator) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if _, err := logging.Setup(cfg.Log); err != nil {
		logrus.Fatalf("Could not set up logging: %v", err)
	}

	store := sim.NewStore()
	var client oracle.Client
	if cfg.Oracle.Endpoint != "" {
		client = oracle.NewHTTPClient(cfg.Oracle.Endpoint, cfg.Oracle.Timeout())
	}
	var durations map[sim.TaskKind]int64
	if len(cfg.Sim.Durations) > 0 {
		durations = make(map[sim.TaskKind]int64, len(cfg.Sim.Durations))
		for kind, ticks := range cfg.Sim.Durations {
			durations[sim.TaskKind(kind)] = ticks
		}
	}
	coord := sim.NewCoordinator(store, client, sim.CoordinatorConfig{
		Seed:          cfg.Sim.Seed,
		RetryBudget:   cfg.Sim.RetryBudget,
		FaultRate:     cfg.Sim.FaultRate,
		Durations:     durations,
		OracleTimeout: cfg.Oracle.Timeout(),
	})
	if sink := logging.JournalSink(cfg.Log); sink != nil {
		coord.SetJournalSink(0, sink)
	}

	if cfg.Sim.LayoutPath != "" {
		layout, err := config.LoadLayout(cfg.Sim.LayoutPath)
		if err != nil {
			logrus.Fatalf("Could not load layout %s: %v", cfg.Sim.LayoutPath, err)
		}
		layout.Apply(coord.Store())
		logrus.Infof("Loaded layout %q: %d zones, %d products, %d AGVs",
			layout.Name, len(layout.Zones), len(layout.Products), len(layout.AGVs))
	}
	return cfg, coord
}

// init sets up shared CLI flags
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
}
