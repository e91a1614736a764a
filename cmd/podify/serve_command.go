package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/podify/internal/jobs"
	"github.com/jo-hoe/podify/internal/processor"
	"github.com/jo-hoe/podify/internal/server"
	"github.com/jo-hoe/podify/internal/storage"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, feed and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.buildApp()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	cfg, logger := a.cfg, a.log
	if err := a.ffmpeg.Check(); err != nil {
		logger.Warn("audio tools unavailable; generation will fail", "err", err)
	}

	store, err := a.openJobStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	worker := processor.New(logger, cfg, store, a.orchestrator)
	queue := jobs.NewQueue(logger, cfg.Server.QueueCapacity, cfg.Server.WorkerCount)
	rootCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := queue.Start(rootCtx, worker); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	go func() {
		for f := range queue.Failures() {
			logger.Warn("background job failed", "job_id", f.JobID, "err", f.Err)
		}
	}()

	httpSrv := server.NewHTTPServer(&server.Service{
		Log:      logger,
		Cfg:      cfg,
		Store:    store,
		Queue:    queue,
		Uploader: storage.NewUploader(cfg.Feed.OutputDir),
		Registry: a.registry,
		Runner:   worker,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr, "base_url", cfg.Server.BaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server error", "err", serveErr)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	queue.Shutdown(cfg.Server.ShutdownGrace)
	logger.Info("server stopped")
	return serveErr
}
