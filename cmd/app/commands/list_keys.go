package commands

import (
	"context"
	"fmt"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// RunListKeys lists a tenant's key records with optional filters and prints a
// page of results together with the total count.
func RunListKeys(
	ctx context.Context,
	tenantID, keyTypeStr, statusStr, conversationID string,
	offset, limit int,
) error {
	var filter keysDomain.ListFilter
	if keyTypeStr != "" {
		keyType, err := keysDomain.ParseKeyType(keyTypeStr)
		if err != nil {
			return err
		}
		filter.KeyType = &keyType
	}
	if statusStr != "" {
		status := keysDomain.KeyStatus(statusStr)
		filter.Status = &status
	}
	if conversationID != "" {
		filter.ConversationID = &conversationID
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	lifecycle, err := container.LifecycleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize lifecycle use case: %w", err)
	}

	keys, total, err := lifecycle.ListKeys(ctx, tenantID, filter, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	views := make([]keyRecordView, 0, len(keys))
	for _, key := range keys {
		views = append(views, newKeyRecordView(key))
	}

	printJSON(map[string]any{
		"keys":  views,
		"total": total,
	})
	return nil
}
