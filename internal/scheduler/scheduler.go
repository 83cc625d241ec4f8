// Package scheduler runs the background key maintenance loops: auto-rotation
// of keys whose rotation policy is due, and expiry of keys past their
// validity window.
//
// Sweeps are idempotent and safe to run concurrently with manual lifecycle
// operations: rotation conflicts mean another actor already rotated the key
// and are skipped, and the expiry sweep is a single guarded bulk UPDATE.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

const (
	// autoRotationReason is recorded on every scheduler-driven rotation.
	autoRotationReason = "Auto rotation"
	// sweepBatchSize caps how many due keys one sweep pass processes.
	sweepBatchSize = 500
)

// SweepSummary reports the outcome of one auto-rotation sweep.
type SweepSummary struct {
	// Scanned is the number of due keys the sweep considered.
	Scanned int
	// Rotated is the number of keys successfully rotated.
	Rotated int
	// Skipped counts keys another actor rotated or revoked first.
	Skipped int
	// Failed counts keys whose rotation errored; failures are isolated and
	// never abort the sweep.
	Failed int
}

// Scheduler drives the periodic auto-rotation and expiry sweeps.
type Scheduler struct {
	lifecycle            keysUseCase.LifecycleUseCase
	logger               *slog.Logger
	autoRotationInterval time.Duration
	expiryInterval       time.Duration
	rotationsPerSec      float64
}

// New creates a Scheduler.
func New(
	lifecycle keysUseCase.LifecycleUseCase,
	logger *slog.Logger,
	autoRotationInterval time.Duration,
	expiryInterval time.Duration,
	rotationsPerSec float64,
) *Scheduler {
	return &Scheduler{
		lifecycle:            lifecycle,
		logger:               logger,
		autoRotationInterval: autoRotationInterval,
		expiryInterval:       expiryInterval,
		rotationsPerSec:      rotationsPerSec,
	}
}

// Run blocks driving both sweep loops until the context is canceled, then
// returns nil. Each loop runs once immediately on start.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("auto_rotation_interval", s.autoRotationInterval),
		slog.Duration("expiry_interval", s.expiryInterval),
	)

	rotationTicker := time.NewTicker(s.autoRotationInterval)
	defer rotationTicker.Stop()
	expiryTicker := time.NewTicker(s.expiryInterval)
	defer expiryTicker.Stop()

	s.sweepExpiry(ctx)
	s.sweepAutoRotation(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-rotationTicker.C:
			s.sweepAutoRotation(ctx)
		case <-expiryTicker.C:
			s.sweepExpiry(ctx)
		}
	}
}

func (s *Scheduler) sweepAutoRotation(ctx context.Context) {
	summary, err := s.RunAutoRotationSweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "auto-rotation sweep failed", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "auto-rotation sweep finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("rotated", summary.Rotated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
	)
}

func (s *Scheduler) sweepExpiry(ctx context.Context) {
	expired, err := s.RunExpirySweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
		return
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expiry sweep finished", slog.Int64("expired", expired))
	}
}

// RunAutoRotationSweep rotates every key whose auto-rotation policy is due,
// paced by a rate limiter so a large backlog cannot saturate the store.
// Per-key failures are logged and skipped; the sweep continues.
func (s *Scheduler) RunAutoRotationSweep(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary

	now := time.Now().UTC()
	due, err := s.lifecycle.ListAutoRotationDue(ctx, now, sweepBatchSize)
	if err != nil {
		return summary, err
	}
	summary.Scanned = len(due)

	limiter := rate.NewLimiter(rate.Limit(s.rotationsPerSec), 1)
	for _, key := range due {
		if err := limiter.Wait(ctx); err != nil {
			return summary, err
		}

		_, err := s.lifecycle.RotateKey(ctx, key.TenantID, key.ID, keysUseCase.RotateKeyOptions{
			Reason:      autoRotationReason,
			PerformedBy: "scheduler",
		})
		switch {
		case err == nil:
			summary.Rotated++
		case apperrors.Is(err, keysDomain.ErrRotationConflict):
			// Another actor rotated or revoked it first; the policy goal is met
			summary.Skipped++
		default:
			summary.Failed++
			s.logger.WarnContext(ctx, "failed to auto-rotate key",
				slog.String("tenant_id", key.TenantID),
				slog.String("key_id", key.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return summary, nil
}

// RunExpirySweep transitions ACTIVE keys past their validity window to
// EXPIRED. Idempotent; returns the number of keys expired.
func (s *Scheduler) RunExpirySweep(ctx context.Context) (int64, error) {
	return s.lifecycle.ExpireDueKeys(ctx, time.Now().UTC())
}
