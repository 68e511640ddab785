package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached records, pending operations and sync metadata",
	Long: `Wipe the offline store. Pending operations that were never synced are
lost; run "tsoam sync" first if the API is reachable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w := cmd.OutOrStdout()
		return withApp(ctx, func(a *app) error {
			pending := a.svc.GetSyncStatus(ctx).PendingOperations

			if !clearYes {
				if !isTerminal() {
					return fmt.Errorf("refusing to clear without --yes")
				}
				fmt.Fprintf(w, "This deletes all offline data including %d pending operation(s). Continue? [y/N] ", pending)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if reply := strings.ToLower(strings.TrimSpace(answer)); reply != "y" && reply != "yes" {
					fmt.Fprintln(w, "Aborted")
					return nil
				}
			}

			if err := a.svc.ClearOfflineData(ctx); err != nil {
				return err
			}
			fmt.Fprintln(w, "Offline data cleared")
			return nil
		})
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(clearCmd)
}
