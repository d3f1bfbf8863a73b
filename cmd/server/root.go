package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cleanupd",
	Short: "cleanupd - adaptive archival and cleanup scheduler",
	Long: `cleanupd moves rows older than a retention window from a live table into
an archive table. Runs are preceded by a verified backup, sized by a batch
controller that learns from previous runs, and moved to the hour with the
lowest observed load. A disk guardian triggers an emergency cleanup when the
filesystem fills past a threshold.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: search ., ./configs, /etc/cleanupd)")
}
