package main

import (
	"context"
	"fmt"

	"github.com/hum-tech/tsoam/internal/dashboard"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync agent with a WebSocket progress dashboard",
	Long: `Run the sync loop and expose its state over HTTP.

Endpoints:
  GET  /health   liveness check
  GET  /status   current sync status as JSON
  POST /sync     run a sync cycle and return its result
  GET  /ws       WebSocket stream of status and progress messages

Example usage:
  tsoam serve                        # listen on dashboard.addr from config
  tsoam serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		addr := cfg.Dashboard.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		return withApp(ctx, func(a *app) error {
			server := dashboard.NewServer(dashboard.Config{
				Addr:           addr,
				OriginPatterns: cfg.Dashboard.OriginPatterns,
				Logger:         logger,
			}, a.svc)
			unsubscribe := a.svc.Subscribe(server)
			defer unsubscribe()

			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Dashboard server started on http://%s\n", server.GetAddr())
			fmt.Fprintf(w, "WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
			fmt.Fprintln(w, "\nPress Ctrl+C to stop...")

			runErr := a.run(ctx)

			fmt.Fprintln(w, "\nShutting down dashboard server...")
			if err := server.Stop(); err != nil {
				return fmt.Errorf("error during shutdown: %w", err)
			}
			return runErr
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides dashboard.addr)")
	rootCmd.AddCommand(serveCmd)
}
