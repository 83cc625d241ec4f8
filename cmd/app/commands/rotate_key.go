package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// RunRotateKey rotates the given key to a new version with fresh material and
// prints the new record. The old version is retired as ROTATED, or as EXPIRED
// when expireOldImmediately is set; either way it can still decrypt old data.
func RunRotateKey(
	ctx context.Context,
	tenantID, keyIDStr, reason string,
	expireOldImmediately bool,
	performedBy string,
) error {
	keyID, err := parseKeyID(keyIDStr)
	if err != nil {
		return err
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	lifecycle, err := container.LifecycleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize lifecycle use case: %w", err)
	}

	key, err := lifecycle.RotateKey(ctx, tenantID, keyID, keysUseCase.RotateKeyOptions{
		Reason:               reason,
		ExpireOldImmediately: expireOldImmediately,
		PerformedBy:          performedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	logger.Info("key rotated",
		slog.String("tenant_id", key.TenantID),
		slog.String("key_id", key.ID.String()),
		slog.Uint64("new_version", uint64(key.Version)),
	)

	printJSON(newKeyRecordView(key))
	return nil
}
