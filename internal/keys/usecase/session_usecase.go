package usecase

import (
	"context"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

type sessionUseCase struct {
	keyRepo   KeyRepository
	lifecycle LifecycleUseCase
	audit     AuditRecorder
}

// NewSessionUseCase creates the session key broker use case.
func NewSessionUseCase(
	keyRepo KeyRepository,
	lifecycle LifecycleUseCase,
	audit AuditRecorder,
) SessionUseCase {
	return &sessionUseCase{
		keyRepo:   keyRepo,
		lifecycle: lifecycle,
		audit:     audit,
	}
}

// InitSession returns the conversation's ACTIVE session key metadata,
// creating the key on first call. Idempotent: repeated calls for the same
// conversation return the same key until it is rotated or revoked.
func (s *sessionUseCase) InitSession(
	ctx context.Context,
	tenantID, conversationID string,
) (*SessionInfo, error) {
	if conversationID == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "conversation id is required")
	}

	key, err := s.lifecycle.ResolveActiveKey(ctx, tenantID, keysDomain.KeyTypeSession, &conversationID)
	if err != nil {
		return nil, err
	}
	return sessionInfoFromKey(key), nil
}

// Exchange returns session key metadata for an initialized conversation and
// audits the exchange. Returns ErrSessionNotInitialized if InitSession was
// never called (or the key is no longer ACTIVE).
func (s *sessionUseCase) Exchange(
	ctx context.Context,
	tenantID, conversationID string,
) (*SessionInfo, error) {
	if conversationID == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "conversation id is required")
	}

	key, err := s.keyRepo.GetActive(ctx, tenantID, keysDomain.KeyTypeSession, &conversationID)
	if err != nil {
		if apperrors.Is(err, keysDomain.ErrNoActiveKey) {
			err = keysDomain.ErrSessionNotInitialized
		}
		record := &auditDomain.AuditRecord{
			TenantID:       tenantID,
			Operation:      auditDomain.OperationSessionKeyExchange,
			Result:         auditDomain.ResultFailure,
			ConversationID: &conversationID,
			ErrorMessage:   err.Error(),
		}
		_ = s.audit.Record(ctx, record)
		return nil, err
	}

	record := &auditDomain.AuditRecord{
		TenantID:       tenantID,
		Operation:      auditDomain.OperationSessionKeyExchange,
		Result:         auditDomain.ResultSuccess,
		KeyID:          &key.ID,
		KeyVersion:     &key.Version,
		ConversationID: &conversationID,
		Metadata:       map[string]any{"fingerprint": key.Fingerprint},
	}
	_ = s.audit.Record(ctx, record)

	return sessionInfoFromKey(key), nil
}

// GetSessionInfo returns session key metadata, or nil if the conversation
// has no ACTIVE session key. Read-only: no side effects, no audit entry.
func (s *sessionUseCase) GetSessionInfo(
	ctx context.Context,
	tenantID, conversationID string,
) (*SessionInfo, error) {
	key, err := s.keyRepo.GetActive(ctx, tenantID, keysDomain.KeyTypeSession, &conversationID)
	if err != nil {
		if apperrors.Is(err, keysDomain.ErrNoActiveKey) {
			return nil, nil
		}
		return nil, err
	}
	return sessionInfoFromKey(key), nil
}

// sessionInfoFromKey projects a key record onto its shareable metadata.
func sessionInfoFromKey(key *keysDomain.KeyRecord) *SessionInfo {
	info := &SessionInfo{
		KeyID:       key.ID,
		Fingerprint: key.Fingerprint,
		Algorithm:   key.Algorithm,
		Version:     key.Version,
		Status:      key.Status,
		ValidFrom:   key.ValidFrom,
		ValidUntil:  key.ValidUntil,
	}
	if key.ConversationID != nil {
		info.ConversationID = *key.ConversationID
	}
	return info
}
