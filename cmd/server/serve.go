package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go-approvals/internal/bootstrap"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", true, "also deliver queued notifications in this process (redis only)")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	var wg sync.WaitGroup
	if app.Coordinator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.Coordinator.Start(ctx); err != nil {
				logger.Error("coordinator stopped", zap.Error(err))
			}
		}()
	}
	if app.Worker != nil && withWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.Worker.Run(ctx, cfg.Worker.Concurrency)
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}
