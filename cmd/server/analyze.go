package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"cleanupd/pkg/analytics"
)

var analyzeDays int

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Print trend analysis of recorded cleanup runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newAnalysisApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report := a.analyzer.AnalyzeTrends(analyzeDays)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().IntVar(&analyzeDays, "days", analytics.DefaultWindowDays, "trailing window in days")
}
