// Package cmd - scan command
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"wastescan/core/types"
)

var (
	scanUserID   string
	forceRefresh bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a user's connections for cost waste",
	Long: `Run a full scan across every connection of one user.

Connections whose findings are still fresh are served from the store
without any provider calls; pass --force to refresh everything.

Examples:
  scand scan --user usr_123
  scand scan --user usr_123 --force`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanUserID, "user", "u", "", "user ID to scan (required)")
	scanCmd.Flags().BoolVarP(&forceRefresh, "force", "f", false, "rescan even when findings are fresh")
	scanCmd.MarkFlagRequired("user")
}

func runScan(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	outcome, err := app.orchestrator.Trigger(context.Background(), scanUserID, forceRefresh)
	if err != nil {
		return err
	}

	printOutcome(outcome)
	return nil
}

func printOutcome(outcome *types.ScanOutcome) {
	if outcome.Cached {
		fmt.Println("Served from cache (findings still fresh)")
	} else {
		fmt.Printf("Scanned %d of %d connections\n", outcome.ScannedCount, outcome.TotalConnections)
	}

	if len(outcome.Findings) == 0 {
		fmt.Println("No findings.")
		return
	}

	fmt.Printf("\n%-28s %-22s %-20s %12s\n", "RESOURCE", "TYPE", "STATUS", "SAVINGS/MO")
	for _, f := range outcome.Findings {
		fmt.Printf("%-28s %-22s %-20s %12s\n",
			truncate(f.ResourceName, 28),
			truncate(f.ResourceType, 22),
			f.Status,
			f.PotentialSavings.StringFixed(2))
		if f.SmartRecommendation != "" && f.SmartRecommendation != f.Reason {
			fmt.Printf("    %s\n", f.SmartRecommendation)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
