package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cleanupd/pkg/models"
)

var runOnceFlags struct {
	retentionDays int
	batchSize     int
	optimize      bool
	skipBackup    bool
	emergency     bool
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single cleanup and exit",
	Long: `Run a single cleanup with the daily settings and print the outcome.

Flags override the configured schedule. --batch-size pins the batch size
instead of letting the batch controller pick it. --emergency uses the
aggressive emergency settings (7 day retention, no backup).`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runOnceCmd)

	f := runOnceCmd.Flags()
	f.IntVar(&runOnceFlags.retentionDays, "retention-days", 0, "override retention window in days")
	f.IntVar(&runOnceFlags.batchSize, "batch-size", 0, "pin the batch size")
	f.BoolVar(&runOnceFlags.optimize, "optimize", false, "vacuum and analyze after archiving")
	f.BoolVar(&runOnceFlags.skipBackup, "skip-backup", false, "do not take a backup first")
	f.BoolVar(&runOnceFlags.emergency, "emergency", false, "use emergency settings")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.Schedule.DailyConfig()
	cfg.JobType = models.JobManual
	if runOnceFlags.emergency {
		cfg = models.EmergencyConfig()
	}
	if runOnceFlags.retentionDays > 0 {
		cfg.RetentionDays = runOnceFlags.retentionDays
	}
	if runOnceFlags.batchSize > 0 {
		cfg.BatchSize = runOnceFlags.batchSize
		cfg.AdaptiveBatch = false
	}
	if runOnceFlags.optimize {
		cfg.OptimizeStorage = true
	}
	if runOnceFlags.skipBackup {
		cfg.BackupFirst = false
	}

	outcome, runErr := a.service.RunCleanup(ctx, cfg)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("cleanup failed: %w", runErr)
	}
	return nil
}
