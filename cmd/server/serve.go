package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cleanupd/api"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler, disk guardian and monitoring API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.addr, "listen", "l", "", "override listen address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveFlags.addr != "" {
		a.cfg.Server.Addr = serveFlags.addr
	}

	if err := a.registerTriggers(); err != nil {
		return err
	}
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := a.engine.Stop(); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}()

	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(api.HandlerDeps{
		Orchestrator: a.service,
		Disk:         a.collector,
		Guardian:     a.guardian,
		Engine:       a.engine,
		Defaults:     a.cfg.Schedule.DailyConfig(),
		Logger:       a.logger,
	})
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      api.SetupRouter(handler, a.metrics.Registry(), a.cfg.Server.CORSOrigins),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting API server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	for _, job := range a.engine.ListUpcoming() {
		a.logger.Info("trigger scheduled",
			zap.String("job", job.Name),
			zap.String("spec", job.Spec),
			zap.Time("next_run", job.NextRun),
		)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}
