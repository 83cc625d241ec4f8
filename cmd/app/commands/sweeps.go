package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
)

// RunAutoRotationSweep runs one auto-rotation sweep pass and prints the
// summary. Safe to run concurrently with a live scheduler: keys another actor
// rotates first are counted as skipped.
func RunAutoRotationSweep(ctx context.Context) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	sched, err := container.Scheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	summary, err := sched.RunAutoRotationSweep(ctx)
	if err != nil {
		return fmt.Errorf("auto-rotation sweep failed: %w", err)
	}

	logger.Info("auto-rotation sweep finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("rotated", summary.Rotated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
	)

	printJSON(map[string]any{
		"scanned": summary.Scanned,
		"rotated": summary.Rotated,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	})
	return nil
}

// RunExpirySweep runs one expiry sweep pass, transitioning ACTIVE keys past
// their validity window to EXPIRED, and prints the count.
func RunExpirySweep(ctx context.Context) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	sched, err := container.Scheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	expired, err := sched.RunExpirySweep(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}

	logger.Info("expiry sweep finished", slog.Int64("expired", expired))
	printJSON(map[string]any{"expired": expired})
	return nil
}
