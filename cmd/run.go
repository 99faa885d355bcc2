package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warehouse-sim/warehouse-sim/sim"
)

var (
	ticks      int64 // Total simulation horizon (in ticks)
	demoData   bool  // Seed the built-in demo warehouse when no layout is configured
	demoOrders int   // Randomly composed orders submitted alongside the demo data
)

// runCmd executes a bounded simulation and prints the final snapshot
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bounded warehouse simulation",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, coord := loadConfig()

		if demoData && cfg.Sim.LayoutPath == "" {
			sim.LoadDemoData(coord.Store())
			orders := coord.SeedDemoOrders(demoOrders)
			logrus.Infof("Seeded demo warehouse data with %d orders", len(orders))
		}
		if len(coord.Store().AGVs()) == 0 {
			logrus.Fatal("No AGVs registered: provide sim.layout_path or pass --demo")
		}

		logrus.Infof("Starting simulation with seed=%d, horizon=%d ticks, fault_rate=%.3f",
			cfg.Sim.Seed, ticks, cfg.Sim.FaultRate)
		startTime := time.Now()

		if err := coord.Run(context.Background(), ticks); err != nil {
			logrus.Fatalf("Simulation halted: %v", err)
		}

		snap := coord.Snapshot()
		logrus.Infof("Simulation complete: tick=%d, live_tasks=%d, orders=%d, wall=%s",
			snap.Tick, len(snap.Tasks), len(snap.Orders), time.Since(startTime))
		for _, p := range snap.Products {
			logrus.Infof("  product %s (%s): qty=%d threshold=%d", p.SKU, p.Name, p.Quantity, p.RestockThreshold)
		}
		for _, a := range snap.AGVs {
			logrus.Infof("  agv %s (%s): status=%s zone=%s battery=%.0f%%", a.ID, a.Name, a.Status, a.Zone, a.Battery)
		}
	},
}

// init sets up run flags and attaches the subcommand
func init() {
	runCmd.Flags().Int64Var(&ticks, "ticks", 100, "Total simulation horizon (in ticks)")
	runCmd.Flags().BoolVar(&demoData, "demo", false, "Seed the built-in demo warehouse")
	runCmd.Flags().IntVar(&demoOrders, "demo-orders", 2, "Random orders submitted with --demo")
	rootCmd.AddCommand(runCmd)
}
