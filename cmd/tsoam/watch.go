package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/hum-tech/tsoam/internal/tui"
	"github.com/spf13/cobra"
)

var watchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync agent with a live progress view",
	Long: `Run the sync loop in the foreground: operations are replayed when the
API becomes reachable and on a fixed interval.

On a terminal a live view shows connectivity, the pending count and cycle
progress. Press "s" to sync now, "o" to toggle online and "q" to quit.
Without a terminal (or with --plain) progress is printed line by line.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		return withApp(ctx, func(a *app) error {
			progressCh := make(chan domain.SyncProgress, 32)
			unsubscribe := a.svc.Subscribe(tui.NewChannelObserver(progressCh))
			defer unsubscribe()

			done := make(chan error, 1)
			go func() { done <- a.run(ctx) }()

			var err error
			if watchPlain || !isTerminal() {
				err = watchPlainOutput(ctx, cmd, progressCh)
			} else {
				model := tui.NewWatchModel(ctx, a.svc, progressCh)
				p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
				logger.Info("starting TUI")
				if _, runErr := p.Run(); runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
					logger.Error("TUI error", "error", runErr)
					err = fmt.Errorf("TUI error: %w", runErr)
				}
			}

			cancel()
			if runErr := <-done; err == nil {
				err = runErr
			}
			logger.Info("shutting down")
			return err
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print progress lines instead of the live view")
	rootCmd.AddCommand(watchCmd)
}

func watchPlainOutput(ctx context.Context, cmd *cobra.Command, progressCh <-chan domain.SyncProgress) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Watching for pending operations. Press Ctrl+C to stop...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-progressCh:
			fmt.Fprintf(w, "[%3d%%] %s: %s\n", p.Progress, p.Step, p.Message)
			if !p.Done() {
				continue
			}
			for _, e := range p.Errors {
				fmt.Fprintf(w, "  error: %s\n", e)
			}
		}
	}
}
