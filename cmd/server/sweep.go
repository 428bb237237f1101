package main

import (
	"encoding/json"
	"fmt"
	"time"

	"go-approvals/internal/bootstrap"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepAt string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one escalation sweep and print the report",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "evaluate deadlines as of this RFC3339 time (default now)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	now := time.Now()
	if sweepAt != "" {
		at, err := time.Parse(time.RFC3339, sweepAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		now = at
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Scheduler.RunEscalationSweep(ctx, now)
	if err != nil {
		return err
	}
	logger.Info("escalation sweep finished", zap.Time("now", now), zap.Any("report", report))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
