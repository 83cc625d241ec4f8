package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
)

// RunScheduler starts the background key maintenance scheduler with graceful
// shutdown support. Loads configuration, initializes the DI container, and
// runs the auto-rotation and expiry sweep loops, serving Prometheus metrics
// when enabled. Blocks until receiving SIGINT/SIGTERM or encountering a fatal
// error; on shutdown the metrics server is stopped within the DBConnMaxLifetime
// timeout.
func RunScheduler(ctx context.Context, version string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting scheduler", slog.String("version", version))

	defer closeContainer(container, logger)

	sched, err := container.Scheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := make(chan error, 2)
	go func() {
		if err := sched.Run(ctx); err != nil {
			runErr <- fmt.Errorf("scheduler error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				runErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	shutdownMetrics := func() error {
		if metricsServer == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return shutdownMetrics()
	case err := <-runErr:
		logger.Error("scheduler error, initiating shutdown", slog.Any("error", err))
		cancel()
		return errors.Join(err, shutdownMetrics())
	}
}
