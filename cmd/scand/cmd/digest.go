// Package cmd - digest command
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wastescan/core/snapshot"
	"wastescan/internal/logging"
)

// digestCmd represents the digest command
var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Recompute savings history for every user",
	Long: `Rebuild today's savings snapshots for all users from their persisted
findings. Intended to run once a day from a scheduler so histories
advance even for users who did not trigger a scan.`,
	RunE: runDigest,
}

func runDigest(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	users, err := app.store.ListUsers(ctx)
	if err != nil {
		return err
	}

	recorder := snapshot.NewRecorder(app.store)
	now := time.Now()
	failures := 0
	for _, user := range users {
		if err := recorder.Recompute(ctx, user.ID, now); err != nil {
			logging.Logger.Error("digest failed for user",
				zap.String("user_id", user.ID), zap.Error(err))
			failures++
		}
	}

	fmt.Printf("Digest complete: %d users, %d failures\n", len(users), failures)
	return nil
}
