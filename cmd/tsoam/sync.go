package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay pending operations now",
	Long: `Run one sync cycle: replay every pending operation grouped by module
and in enqueue order, then clean up expired operations.

Nothing is sent while the API is unreachable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			return runSync(ctx, a, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

// runSync runs one cycle and prints its progress as plain lines.
func runSync(ctx context.Context, a *app, w io.Writer) error {
	if !a.svc.Online() {
		status := a.svc.GetSyncStatus(ctx)
		fmt.Fprintf(w, "Offline: %d operation(s) stay queued\n", status.PendingOperations)
		return nil
	}

	unsubscribe := a.svc.Subscribe(domain.ObserverFunc(func(p domain.SyncProgress) {
		fmt.Fprintf(w, "[%3d%%] %s: %s\n", p.Progress, p.Step, p.Message)
	}))
	defer unsubscribe()

	res := a.svc.ForceSyncAll(ctx)
	if res.Skipped {
		fmt.Fprintln(w, "Sync skipped: another cycle is running or the API is offline")
		return nil
	}

	fmt.Fprintf(w, "Succeeded: %d  Dropped: %d  Collected: %d\n", res.Succeeded, res.Dropped, res.Collected)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	return res.Err
}
