package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// sessionInfoView is the printable form of session key metadata.
type sessionInfoView struct {
	KeyID          uuid.UUID  `json:"key_id"`
	ConversationID string     `json:"conversation_id"`
	Fingerprint    string     `json:"fingerprint"`
	Algorithm      string     `json:"algorithm"`
	Version        uint       `json:"version"`
	Status         string     `json:"status"`
	ValidFrom      time.Time  `json:"valid_from"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
}

func newSessionInfoView(info *keysUseCase.SessionInfo) sessionInfoView {
	return sessionInfoView{
		KeyID:          info.KeyID,
		ConversationID: info.ConversationID,
		Fingerprint:    info.Fingerprint,
		Algorithm:      string(info.Algorithm),
		Version:        info.Version,
		Status:         string(info.Status),
		ValidFrom:      info.ValidFrom,
		ValidUntil:     info.ValidUntil,
	}
}

// RunInitSession ensures a conversation has an ACTIVE session key and prints
// its shareable metadata. Idempotent: repeated calls return the same key until
// it is rotated or revoked.
func RunInitSession(ctx context.Context, tenantID, conversationID string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	session, err := container.SessionUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize session use case: %w", err)
	}

	info, err := session.InitSession(ctx, tenantID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}

	logger.Info("session initialized",
		slog.String("tenant_id", tenantID),
		slog.String("conversation_id", conversationID),
		slog.String("key_id", info.KeyID.String()),
	)

	printJSON(newSessionInfoView(info))
	return nil
}

// RunExchangeSession performs an audited session key exchange for an
// initialized conversation and prints the key metadata.
func RunExchangeSession(ctx context.Context, tenantID, conversationID string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	session, err := container.SessionUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize session use case: %w", err)
	}

	info, err := session.Exchange(ctx, tenantID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to exchange session key: %w", err)
	}

	printJSON(newSessionInfoView(info))
	return nil
}

// RunSessionInfo prints a conversation's session key metadata, or a note when
// no session exists. Read-only: leaves no audit entry.
func RunSessionInfo(ctx context.Context, tenantID, conversationID string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	session, err := container.SessionUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize session use case: %w", err)
	}

	info, err := session.GetSessionInfo(ctx, tenantID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get session info: %w", err)
	}
	if info == nil {
		fmt.Printf("No active session key for conversation %s\n", conversationID)
		return nil
	}

	printJSON(newSessionInfoView(info))
	return nil
}
