package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-approvals/internal/config"
	"go-approvals/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Approval workflow engine",
	Long: `approvals routes business objects through multi-step approval workflows.

Examples:
  # Run the HTTP API
  approvals serve

  # Run one escalation sweep (cron entry point)
  approvals sweep --at 2026-01-02T09:00:00Z

  # Deliver queued notifications
  approvals worker

  # Create or update the database schema
  approvals migrate
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

// setup loads the configuration and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
