package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// CreateKeyOptions holds the flag values for the create-key command.
type CreateKeyOptions struct {
	TenantID             string
	Name                 string
	KeyType              string
	Algorithm            string
	ConversationID       string
	ValidDays            int
	AutoRotate           bool
	RotationIntervalDays int
	CreatedBy            string
}

// RunCreateKey creates a new logical key line and prints the resulting record.
// The key material is generated, sealed under the root key, and persisted as
// version 1 in ACTIVE status; the raw material is never printed.
//
// Requirements: Database must be migrated and ROOT_SECRET must be set.
func RunCreateKey(ctx context.Context, opts CreateKeyOptions) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	lifecycle, err := container.LifecycleUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize lifecycle use case: %w", err)
	}

	input := keysUseCase.CreateKeyInput{
		Name:                 opts.Name,
		KeyType:              keysDomain.KeyType(opts.KeyType),
		Algorithm:            keysDomain.Algorithm(opts.Algorithm),
		ValidDays:            opts.ValidDays,
		AutoRotate:           opts.AutoRotate,
		RotationIntervalDays: opts.RotationIntervalDays,
		CreatedBy:            opts.CreatedBy,
	}
	if opts.ConversationID != "" {
		input.ConversationID = &opts.ConversationID
	}

	key, err := lifecycle.CreateKey(ctx, opts.TenantID, input)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	logger.Info("key created",
		slog.String("tenant_id", key.TenantID),
		slog.String("key_id", key.ID.String()),
		slog.String("key_type", string(key.KeyType)),
		slog.String("fingerprint", key.Fingerprint),
	)

	printJSON(newKeyRecordView(key))
	return nil
}
