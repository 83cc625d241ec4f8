package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	"github.com/convosec/keycore/internal/metrics"
)

func metricsStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type lifecycleUseCaseWithMetrics struct {
	next    LifecycleUseCase
	metrics metrics.BusinessMetrics
}

// NewLifecycleUseCaseWithMetrics decorates a LifecycleUseCase with operation
// counters and duration histograms.
func NewLifecycleUseCaseWithMetrics(useCase LifecycleUseCase, m metrics.BusinessMetrics) LifecycleUseCase {
	return &lifecycleUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (l *lifecycleUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metricsStatus(err)
	l.metrics.RecordOperation(ctx, "keys", operation, status)
	l.metrics.RecordDuration(ctx, "keys", operation, time.Since(start), status)
}

func (l *lifecycleUseCaseWithMetrics) CreateKey(
	ctx context.Context,
	tenantID string,
	input CreateKeyInput,
) (*keysDomain.KeyRecord, error) {
	start := time.Now()
	key, err := l.next.CreateKey(ctx, tenantID, input)
	l.record(ctx, "key_create", start, err)
	return key, err
}

func (l *lifecycleUseCaseWithMetrics) RotateKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
	opts RotateKeyOptions,
) (*keysDomain.KeyRecord, error) {
	start := time.Now()
	key, err := l.next.RotateKey(ctx, tenantID, keyID, opts)
	l.record(ctx, "key_rotate", start, err)
	return key, err
}

func (l *lifecycleUseCaseWithMetrics) RevokeKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
	reason, performedBy string,
) (*keysDomain.KeyRecord, error) {
	start := time.Now()
	key, err := l.next.RevokeKey(ctx, tenantID, keyID, reason, performedBy)
	l.record(ctx, "key_revoke", start, err)
	return key, err
}

func (l *lifecycleUseCaseWithMetrics) GetKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
) (*keysDomain.KeyRecord, error) {
	return l.next.GetKey(ctx, tenantID, keyID)
}

func (l *lifecycleUseCaseWithMetrics) ListKeys(
	ctx context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
	offset, limit int,
) ([]*keysDomain.KeyRecord, int64, error) {
	return l.next.ListKeys(ctx, tenantID, filter, offset, limit)
}

func (l *lifecycleUseCaseWithMetrics) ResolveActiveKey(
	ctx context.Context,
	tenantID string,
	keyType keysDomain.KeyType,
	conversationID *string,
) (*keysDomain.KeyRecord, error) {
	return l.next.ResolveActiveKey(ctx, tenantID, keyType, conversationID)
}

func (l *lifecycleUseCaseWithMetrics) ExpireDueKeys(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	expired, err := l.next.ExpireDueKeys(ctx, now)
	l.record(ctx, "key_expire_sweep", start, err)
	return expired, err
}

func (l *lifecycleUseCaseWithMetrics) ListAutoRotationDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*keysDomain.KeyRecord, error) {
	return l.next.ListAutoRotationDue(ctx, now, limit)
}

type encryptionUseCaseWithMetrics struct {
	next    EncryptionUseCase
	metrics metrics.BusinessMetrics
}

// NewEncryptionUseCaseWithMetrics decorates an EncryptionUseCase with
// operation counters and duration histograms.
func NewEncryptionUseCaseWithMetrics(useCase EncryptionUseCase, m metrics.BusinessMetrics) EncryptionUseCase {
	return &encryptionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (e *encryptionUseCaseWithMetrics) Encrypt(
	ctx context.Context,
	tenantID string,
	plaintext []byte,
	target EncryptTarget,
) (*EncryptOutput, error) {
	start := time.Now()
	output, err := e.next.Encrypt(ctx, tenantID, plaintext, target)

	status := metricsStatus(err)
	e.metrics.RecordOperation(ctx, "encryption", "encrypt", status)
	e.metrics.RecordDuration(ctx, "encryption", "encrypt", time.Since(start), status)

	return output, err
}

func (e *encryptionUseCaseWithMetrics) IsEnabled() bool {
	return e.next.IsEnabled()
}

func (e *encryptionUseCaseWithMetrics) Decrypt(
	ctx context.Context,
	tenantID string,
	input DecryptInput,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := e.next.Decrypt(ctx, tenantID, input)

	status := metricsStatus(err)
	e.metrics.RecordOperation(ctx, "encryption", "decrypt", status)
	e.metrics.RecordDuration(ctx, "encryption", "decrypt", time.Since(start), status)

	return plaintext, err
}

type sessionUseCaseWithMetrics struct {
	next    SessionUseCase
	metrics metrics.BusinessMetrics
}

// NewSessionUseCaseWithMetrics decorates a SessionUseCase with operation
// counters and duration histograms.
func NewSessionUseCaseWithMetrics(useCase SessionUseCase, m metrics.BusinessMetrics) SessionUseCase {
	return &sessionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (s *sessionUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metricsStatus(err)
	s.metrics.RecordOperation(ctx, "session", operation, status)
	s.metrics.RecordDuration(ctx, "session", operation, time.Since(start), status)
}

func (s *sessionUseCaseWithMetrics) InitSession(
	ctx context.Context,
	tenantID, conversationID string,
) (*SessionInfo, error) {
	start := time.Now()
	info, err := s.next.InitSession(ctx, tenantID, conversationID)
	s.record(ctx, "session_init", start, err)
	return info, err
}

func (s *sessionUseCaseWithMetrics) Exchange(
	ctx context.Context,
	tenantID, conversationID string,
) (*SessionInfo, error) {
	start := time.Now()
	info, err := s.next.Exchange(ctx, tenantID, conversationID)
	s.record(ctx, "session_exchange", start, err)
	return info, err
}

func (s *sessionUseCaseWithMetrics) GetSessionInfo(
	ctx context.Context,
	tenantID, conversationID string,
) (*SessionInfo, error) {
	return s.next.GetSessionInfo(ctx, tenantID, conversationID)
}
