package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warehouse-sim/warehouse-sim/api"
	"github.com/warehouse-sim/warehouse-sim/sim"
	"github.com/warehouse-sim/warehouse-sim/sim/persist"
)

var serveDemo bool // Seed demo data on first start when no snapshot exists

// serveCmd runs the engine as a long-lived HTTP service with background
// ticks and optional SQLite snapshots
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the coordination engine over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, coord := loadConfig()

		var db *persist.DB
		if cfg.Sim.SnapshotPath != "" {
			var err error
			db, err = persist.Open(cfg.Sim.SnapshotPath)
			if err != nil {
				logrus.Fatalf("Could not open snapshot store: %v", err)
			}
			tick, found, err := db.Load(coord.Store())
			if err != nil {
				logrus.Fatalf("Could not load snapshot: %v", err)
			}
			if found {
				coord.SetClock(tick)
				logrus.Infof("Restored snapshot at tick %d", tick)
			}
		}

		if len(coord.Store().AGVs()) == 0 {
			if serveDemo {
				sim.LoadDemoData(coord.Store())
				logrus.Info("Seeded demo warehouse data")
			} else {
				logrus.Fatal("No AGVs registered: provide sim.layout_path, a snapshot, or pass --demo")
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		interval := time.Duration(cfg.Sim.TickIntervalMS) * time.Millisecond
		tickDone := make(chan error, 1)
		go func() {
			tickDone <- coord.RunEvery(ctx, interval)
		}()

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: api.NewServer(coord).Handler(),
		}
		go func() {
			logrus.Infof("Listening on %s (tick interval %s)", cfg.Server.Addr, interval)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("HTTP server failed: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		logrus.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("HTTP shutdown: %v", err)
		}
		if err := <-tickDone; err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorf("Tick loop stopped with error: %v", err)
		}

		if db != nil {
			if err := db.Save(coord.Snapshot(), coord.Store().ArchivedTasks()); err != nil {
				logrus.Errorf("Could not save snapshot: %v", err)
			} else {
				logrus.Infof("Saved snapshot at tick %d", coord.Clock())
			}
		}
	},
}

// init sets up serve flags and attaches the subcommand
func init() {
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false, "Seed the built-in demo warehouse when starting empty")
	rootCmd.AddCommand(serveCmd)
}
