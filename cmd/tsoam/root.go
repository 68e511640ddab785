package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hum-tech/tsoam/internal/adapter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgFile      string
	forceOffline bool
	debugLog     bool

	cfg       *adapter.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "tsoam",
	Short: "Offline operation queue and sync agent for the church admin API",
	Long: `tsoam keeps a durable queue of create, update and delete operations
made while the church admin API is unreachable, and replays them in order
once connectivity returns.

Cached records can be read back offline, searched, and watched live.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}

		loaded, err := adapter.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if debugLog {
			cfg.Logging.Level = "DEBUG"
		}

		l, closer, err := adapter.SetupLogger(&cfg.Logging)
		if err != nil {
			// Fall back to null logger if file logging fails
			fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
			l = adapter.NullLogger()
		}
		logger, logCloser = l, closer
		slog.SetDefault(logger)

		logger.Info("starting tsoam", "version", Version, "command", cmd.Name())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/tsoam/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "treat the API as unreachable")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "log at debug level")
}

// isTerminal reports whether stdout is an interactive terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
