package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// stubLifecycle implements the lifecycle interface with injectable behavior
// for the operations the scheduler drives.
type stubLifecycle struct {
	keysUseCase.LifecycleUseCase

	mu         sync.Mutex
	due        []*keysDomain.KeyRecord
	rotateErrs map[uuid.UUID]error
	rotated    []uuid.UUID
	expired    int64
	sweeps     int
}

func (s *stubLifecycle) ListAutoRotationDue(
	_ context.Context,
	_ time.Time,
	_ int,
) ([]*keysDomain.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.due, nil
}

func (s *stubLifecycle) RotateKey(
	_ context.Context,
	_ string,
	keyID uuid.UUID,
	_ keysUseCase.RotateKeyOptions,
) (*keysDomain.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.rotateErrs[keyID]; ok {
		return nil, err
	}
	s.rotated = append(s.rotated, keyID)
	return &keysDomain.KeyRecord{ID: uuid.Must(uuid.NewV7())}, nil
}

func (s *stubLifecycle) ExpireDueKeys(_ context.Context, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return s.expired, nil
}

func dueKey(tenantID string) *keysDomain.KeyRecord {
	return &keysDomain.KeyRecord{
		ID:       uuid.Must(uuid.NewV7()),
		TenantID: tenantID,
		Status:   keysDomain.KeyStatusActive,
	}
}

func TestScheduler_RunAutoRotationSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		lifecycle := &stubLifecycle{
			due: []*keysDomain.KeyRecord{dueKey("tenant-1"), dueKey("tenant-1")},
		}
		scheduler := New(lifecycle, slog.Default(), time.Hour, time.Hour, 1000)

		summary, err := scheduler.RunAutoRotationSweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Scanned)
		assert.Equal(t, 2, summary.Rotated)
		assert.Equal(t, 0, summary.Skipped)
		assert.Equal(t, 0, summary.Failed)
		assert.Len(t, lifecycle.rotated, 2)
	})

	t.Run("Success_ConflictSkipped", func(t *testing.T) {
		contested := dueKey("tenant-1")
		lifecycle := &stubLifecycle{
			due: []*keysDomain.KeyRecord{contested, dueKey("tenant-1")},
			rotateErrs: map[uuid.UUID]error{
				contested.ID: keysDomain.ErrRotationConflict,
			},
		}
		scheduler := New(lifecycle, slog.Default(), time.Hour, time.Hour, 1000)

		summary, err := scheduler.RunAutoRotationSweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Scanned)
		assert.Equal(t, 1, summary.Rotated)
		assert.Equal(t, 1, summary.Skipped)
		assert.Equal(t, 0, summary.Failed)
	})

	t.Run("Success_FailureIsolated", func(t *testing.T) {
		broken := dueKey("tenant-1")
		lifecycle := &stubLifecycle{
			due: []*keysDomain.KeyRecord{broken, dueKey("tenant-1"), dueKey("tenant-2")},
			rotateErrs: map[uuid.UUID]error{
				broken.ID: errors.New("connection refused"),
			},
		}
		scheduler := New(lifecycle, slog.Default(), time.Hour, time.Hour, 1000)

		summary, err := scheduler.RunAutoRotationSweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3, summary.Scanned)
		assert.Equal(t, 2, summary.Rotated)
		assert.Equal(t, 1, summary.Failed)
	})

	t.Run("Success_NothingDue", func(t *testing.T) {
		lifecycle := &stubLifecycle{}
		scheduler := New(lifecycle, slog.Default(), time.Hour, time.Hour, 1000)

		summary, err := scheduler.RunAutoRotationSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepSummary{}, summary)
	})

	t.Run("Error_CanceledDuringPacing", func(t *testing.T) {
		lifecycle := &stubLifecycle{
			due: []*keysDomain.KeyRecord{dueKey("tenant-1"), dueKey("tenant-1")},
		}
		// One rotation per 10s: the second limiter wait outlives the context
		scheduler := New(lifecycle, slog.Default(), time.Hour, time.Hour, 0.1)

		canceled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := scheduler.RunAutoRotationSweep(canceled)
		assert.Error(t, err)
	})
}

func TestScheduler_RunExpirySweep(t *testing.T) {
	lifecycle := &stubLifecycle{expired: 3}
	scheduler := New(lifecycle, slog.Default(), time.Hour, time.Hour, 1000)

	expired, err := scheduler.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
}

func TestScheduler_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	lifecycle := &stubLifecycle{
		due:     []*keysDomain.KeyRecord{dueKey("tenant-1")},
		expired: 1,
	}
	scheduler := New(lifecycle, slog.Default(), 10*time.Millisecond, 10*time.Millisecond, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()

	// Let the immediate sweeps and at least one tick happen
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}

	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	assert.GreaterOrEqual(t, lifecycle.sweeps, 1)
	assert.NotEmpty(t, lifecycle.rotated)
}
