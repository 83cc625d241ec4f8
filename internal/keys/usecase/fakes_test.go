package usecase

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysService "github.com/convosec/keycore/internal/keys/service"
)

// fakeTxManager runs the function directly; the fake repository has no
// transaction semantics to coordinate.
type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// lineKey identifies a logical key line.
type lineKey struct {
	tenantID       string
	name           string
	keyType        keysDomain.KeyType
	conversationID string
}

func lineOf(key *keysDomain.KeyRecord) lineKey {
	line := lineKey{tenantID: key.TenantID, name: key.Name, keyType: key.KeyType}
	if key.ConversationID != nil {
		line.conversationID = *key.ConversationID
	}
	return line
}

// fakeKeyRepo is an in-memory KeyRepository enforcing the same invariants as
// the SQL implementations: at most one ACTIVE record per logical line, and
// guarded status updates.
type fakeKeyRepo struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*keysDomain.KeyRecord

	failCreate error

	// Hooks for simulating a concurrent writer sneaking in between the
	// use case's read and its guarded write.
	beforeCreate       func()
	beforeUpdateStatus func()
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[uuid.UUID]*keysDomain.KeyRecord)}
}

func copyKey(key *keysDomain.KeyRecord) *keysDomain.KeyRecord {
	clone := *key
	return &clone
}

func (f *fakeKeyRepo) Create(_ context.Context, key *keysDomain.KeyRecord) error {
	if f.beforeCreate != nil {
		hook := f.beforeCreate
		f.beforeCreate = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate != nil {
		return f.failCreate
	}

	if key.Status == keysDomain.KeyStatusActive {
		line := lineOf(key)
		for _, existing := range f.keys {
			if existing.Status == keysDomain.KeyStatusActive && lineOf(existing) == line {
				return apperrors.Wrap(apperrors.ErrConflict, "duplicate active key for line")
			}
		}
	}

	f.keys[key.ID] = copyKey(key)
	return nil
}

func (f *fakeKeyRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*keysDomain.KeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, ok := f.keys[id]
	if !ok || key.TenantID != tenantID {
		return nil, keysDomain.ErrKeyNotFound
	}
	return copyKey(key), nil
}

func (f *fakeKeyRepo) GetByIDAndVersion(
	_ context.Context,
	tenantID string,
	id uuid.UUID,
	version uint,
) (*keysDomain.KeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	anchor, ok := f.keys[id]
	if !ok || anchor.TenantID != tenantID {
		return nil, keysDomain.ErrKeyNotFound
	}
	line := lineOf(anchor)
	for _, key := range f.keys {
		if lineOf(key) == line && key.Version == version {
			return copyKey(key), nil
		}
	}
	return nil, keysDomain.ErrKeyNotFound
}

func (f *fakeKeyRepo) GetActive(
	_ context.Context,
	tenantID string,
	keyType keysDomain.KeyType,
	conversationID *string,
) (*keysDomain.KeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conversation := ""
	if conversationID != nil {
		conversation = *conversationID
	}

	for _, key := range f.keys {
		if key.TenantID != tenantID || key.KeyType != keyType || key.Status != keysDomain.KeyStatusActive {
			continue
		}
		line := lineOf(key)
		if line.conversationID == conversation {
			return copyKey(key), nil
		}
	}
	return nil, keysDomain.ErrNoActiveKey
}

func matchesFilter(key *keysDomain.KeyRecord, filter keysDomain.ListFilter) bool {
	if filter.KeyType != nil && key.KeyType != *filter.KeyType {
		return false
	}
	if filter.Status != nil && key.Status != *filter.Status {
		return false
	}
	if filter.ConversationID != nil {
		if key.ConversationID == nil || *key.ConversationID != *filter.ConversationID {
			return false
		}
	}
	return true
}

func (f *fakeKeyRepo) List(
	_ context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
	offset, limit int,
) ([]*keysDomain.KeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]*keysDomain.KeyRecord, 0)
	for _, key := range f.keys {
		if key.TenantID == tenantID && matchesFilter(key, filter) {
			matched = append(matched, copyKey(key))
		}
	}
	if offset >= len(matched) {
		return []*keysDomain.KeyRecord{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (f *fakeKeyRepo) Count(
	_ context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, key := range f.keys {
		if key.TenantID == tenantID && matchesFilter(key, filter) {
			count++
		}
	}
	return count, nil
}

func (f *fakeKeyRepo) UpdateStatus(
	_ context.Context,
	key *keysDomain.KeyRecord,
	from keysDomain.KeyStatus,
) error {
	if f.beforeUpdateStatus != nil {
		hook := f.beforeUpdateStatus
		f.beforeUpdateStatus = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.keys[key.ID]
	if !ok || stored.Status != from {
		return apperrors.Wrap(apperrors.ErrConflict, "key status changed concurrently")
	}
	f.keys[key.ID] = copyKey(key)
	return nil
}

func (f *fakeKeyRepo) BulkExpire(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var expired int64
	for _, key := range f.keys {
		if key.Status == keysDomain.KeyStatusActive && key.ValidUntil != nil && key.ValidUntil.Before(now) {
			key.Status = keysDomain.KeyStatusExpired
			key.RotatedAt = &now
			key.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

func (f *fakeKeyRepo) IncrementUsage(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if key, ok := f.keys[id]; ok {
		key.UsageCount++
	}
	return nil
}

func (f *fakeKeyRepo) ListAutoRotationDue(
	_ context.Context,
	now time.Time,
	limit int,
) ([]*keysDomain.KeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	due := make([]*keysDomain.KeyRecord, 0)
	for _, key := range f.keys {
		if key.AutoRotationDueAt(now) && len(due) < limit {
			due = append(due, copyKey(key))
		}
	}
	return due, nil
}

// fakeAudit collects audit records in memory.
type fakeAudit struct {
	mu      sync.Mutex
	records []*auditDomain.AuditRecord
}

func (f *fakeAudit) Record(_ context.Context, record *auditDomain.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeAudit) byOperation(operation auditDomain.Operation) []*auditDomain.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]*auditDomain.AuditRecord, 0)
	for _, record := range f.records {
		if record.Operation == operation {
			matched = append(matched, record)
		}
	}
	return matched
}

// testEnv wires real crypto services against in-memory fakes.
type testEnv struct {
	repo      *fakeKeyRepo
	audit     *fakeAudit
	envelope  *keysService.EnvelopeService
	lifecycle LifecycleUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rootKey := &keysDomain.RootKey{Key: []byte("keycore-test-root-secret-32bytes!")}
	aeadManager := keysService.NewAEADManager()
	envelope, err := keysService.NewEnvelope(rootKey, aeadManager, keysDomain.AESGCM)
	require.NoError(t, err)
	t.Cleanup(envelope.Close)

	repo := newFakeKeyRepo()
	audit := &fakeAudit{}

	lifecycle := NewLifecycleUseCase(
		&fakeTxManager{},
		repo,
		keysService.NewKeyGenerator(),
		envelope,
		audit,
		slog.Default(),
		keysDomain.AESGCM,
		24*time.Hour,
	)

	return &testEnv{
		repo:      repo,
		audit:     audit,
		envelope:  envelope,
		lifecycle: lifecycle,
	}
}

func (e *testEnv) newEncryption(t *testing.T, enabled bool) EncryptionUseCase {
	t.Helper()
	return NewEncryptionUseCase(
		e.repo,
		e.lifecycle,
		e.envelope,
		keysService.NewAEADManager(),
		e.audit,
		slog.Default(),
		enabled,
	)
}

func (e *testEnv) newSession() SessionUseCase {
	return NewSessionUseCase(e.repo, e.lifecycle, e.audit)
}
