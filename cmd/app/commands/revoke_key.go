package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
)

// RunRevokeKey moves a key to the terminal REVOKED status and prints the
// record. Decryption with a revoked key is denied from this point on, so this
// is the kill switch for compromised keys.
func RunRevokeKey(ctx context.Context, tenantID, keyIDStr, reason, performedBy string) error {
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

	key, err := lifecycle.RevokeKey(ctx, tenantID, keyID, reason, performedBy)
	if err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	logger.Info("key revoked",
		slog.String("tenant_id", key.TenantID),
		slog.String("key_id", key.ID.String()),
		slog.String("reason", reason),
	)

	printJSON(newKeyRecordView(key))
	return nil
}
