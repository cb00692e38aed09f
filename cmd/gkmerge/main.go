package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/config"
	"github.com/nvandessel/gkmerge/internal/logging"
	"github.com/nvandessel/gkmerge/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gkmerge",
		Short: "Default contagion and bank mergers on interbank networks",
		Long: `gkmerge simulates how insolvency spreads through a network of banks
connected by interbank loans and common asset holdings, and how bank
mergers change the risk of system-wide default cascades.

It runs single cascades, contagion window sweeps over network density,
and continuous mergers experiments, and serves all of them over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.gkmerge/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newCascadeCmd(),
		newWindowCmd(),
		newMergersCmd(),
		newGraphCmd(),
		newResultsCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadSettings loads the configuration named by --config and applies
// --log-level on top.
func loadSettings(cmd *cobra.Command) (*config.GkmergeConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	settings, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		settings.Logging.Level = level
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return settings, nil
}

// newLogger logs to the command's stderr at the configured level.
func newLogger(cmd *cobra.Command, settings *config.GkmergeConfig) *slog.Logger {
	return logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr())
}

// openTracer returns the cascade trace, or nil below trace level.
func openTracer(settings *config.GkmergeConfig) (*logging.TraceLogger, error) {
	dir, err := settings.TraceDir()
	if err != nil {
		return nil, err
	}
	return logging.NewTraceLogger(dir, settings.Logging.Level), nil
}

// openStore opens the configured result store.
func openStore(settings *config.GkmergeConfig) (store.ResultStore, error) {
	if settings.Store.Backend == config.BackendMemory {
		return store.NewInMemoryResultStore(), nil
	}
	dir, err := settings.StoreDir()
	if err != nil {
		return nil, err
	}
	rs, err := store.NewSQLiteResultStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return rs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
