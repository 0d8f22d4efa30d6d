package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"newsletter-go/internal/app"
	"newsletter-go/internal/config"
	"newsletter-go/internal/database"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/migrations"
	"newsletter-go/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the database and run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.NewLogger(settings.Log.Level)

		if settings.Tracing.Enabled {
			tp, err := telemetry.InitTracing(settings.Application.ServiceName, settings.Application.ServiceVersion, os.Stdout)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() {
				if err := telemetry.ShutdownTracing(context.Background(), tp); err != nil {
					logger.WithError(err).Error("Error shutting down tracer provider")
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := database.NewPool(ctx, settings.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.Run(ctx, pool, logger); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}

		application, err := app.Build(&app.Config{
			ServiceName:    settings.Application.ServiceName,
			ServiceVersion: settings.Application.ServiceVersion,
			Addr:           settings.Application.Addr(),
			Logger:         logger,
			TracerProvider: otel.GetTracerProvider(),
			GinMode:        settings.Application.GinMode,
			Pool:           pool,
			QueryTimeout:   settings.Database.QueryTimeout,
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- application.Run()
		}()

		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server exited: %w", err)
			}
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Application.ShutdownTimeout)
		defer cancel()

		if err := application.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		logger.WithFields(logrus.Fields{"addr": settings.Application.Addr()}).Info("Server exited")
		return nil
	},
}
