package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusJSON    bool
	statusPending bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, pending operations and last sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w := cmd.OutOrStdout()
		return withApp(ctx, func(a *app) error {
			status := a.svc.GetSyncStatus(ctx)

			if statusJSON {
				out := map[string]any{
					"online":            status.Online,
					"syncInProgress":    status.SyncInProgress,
					"pendingOperations": status.PendingOperations,
					"degraded":          status.Degraded,
				}
				if !status.LastSync.IsZero() {
					out["lastSync"] = status.LastSync.UTC().Format(time.RFC3339)
				}
				if statusPending {
					ops, err := a.svc.PendingOperations(ctx)
					if err != nil {
						return err
					}
					out["operations"] = ops
				}
				return printJSON(w, out)
			}

			state := "offline"
			if status.Online {
				state = "online"
			}
			last := "never"
			if !status.LastSync.IsZero() {
				last = status.LastSync.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "API:                %s (%s)\n", state, cfg.API.BaseURL)
			fmt.Fprintf(w, "Pending operations: %d\n", status.PendingOperations)
			fmt.Fprintf(w, "Last sync:          %s\n", last)
			if status.Degraded {
				fmt.Fprintln(w, "Offline cache:      unavailable")
			}

			if !statusPending {
				return nil
			}
			ops, err := a.svc.PendingOperations(ctx)
			if err != nil {
				return err
			}
			for _, op := range ops {
				line := fmt.Sprintf("  %-14s %-6s %s  retries=%d", op.Module, op.Kind, op.EnqueuedAt().Format("2006-01-02 15:04:05"), op.RetryCount)
				if op.LastError != "" {
					line += "  last error: " + op.LastError
				}
				fmt.Fprintln(w, line)
			}
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().BoolVar(&statusPending, "pending", false, "list pending operations in replay order")
	rootCmd.AddCommand(statusCmd)
}
