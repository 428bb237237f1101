package main

import (
	"errors"

	"go-approvals/internal/bootstrap"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued notifications until interrupted",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !cfg.Redis.Enabled {
		return errors.New("the notification worker needs redis.enabled=true")
	}

	ctx, stop := signalContext()
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("notification worker starting", zap.Int("concurrency", cfg.Worker.Concurrency))
	app.Worker.Run(ctx, cfg.Worker.Concurrency)
	logger.Info("notification worker stopped")
	return nil
}
