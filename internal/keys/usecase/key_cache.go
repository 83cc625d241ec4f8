package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// cachedKeyEntry is one cached active-key resolution.
type cachedKeyEntry struct {
	key       *keysDomain.KeyRecord
	expiresAt time.Time
}

// lifecycleWithKeyCache decorates a LifecycleUseCase with a short-TTL
// read-through cache on ResolveActiveKey. Concurrent misses for the same
// logical line are collapsed into one store read with singleflight.
//
// The cache holds sealed records only, never raw material. It is NOT
// authoritative: a rotation or revocation on another process is observed at
// the latest after the TTL, which is why the TTL must stay small (≤5s) and
// the cache ships disabled by default. Local writes invalidate eagerly.
type lifecycleWithKeyCache struct {
	LifecycleUseCase

	ttl     time.Duration
	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cachedKeyEntry
}

// NewLifecycleWithKeyCache wraps a LifecycleUseCase with a read-through
// active-key cache with the given TTL.
func NewLifecycleWithKeyCache(next LifecycleUseCase, ttl time.Duration) LifecycleUseCase {
	return &lifecycleWithKeyCache{
		LifecycleUseCase: next,
		ttl:              ttl,
		entries:          make(map[string]cachedKeyEntry),
	}
}

func cacheKey(tenantID string, keyType keysDomain.KeyType, conversationID *string) string {
	conversation := ""
	if conversationID != nil {
		conversation = *conversationID
	}
	return fmt.Sprintf("%s/%s/%s", tenantID, keyType, conversation)
}

// ResolveActiveKey serves from cache when fresh, otherwise reads through.
func (c *lifecycleWithKeyCache) ResolveActiveKey(
	ctx context.Context,
	tenantID string,
	keyType keysDomain.KeyType,
	conversationID *string,
) (*keysDomain.KeyRecord, error) {
	entryKey := cacheKey(tenantID, keyType, conversationID)

	c.mu.RLock()
	entry, ok := c.entries[entryKey]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.key, nil
	}

	result, err, _ := c.group.Do(entryKey, func() (any, error) {
		key, err := c.LifecycleUseCase.ResolveActiveKey(ctx, tenantID, keyType, conversationID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[entryKey] = cachedKeyEntry{key: key, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()

		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*keysDomain.KeyRecord), nil
}

// RotateKey rotates through the wrapped use case and drops every cached
// entry: the rotated line's cache key is not derivable from the key id alone,
// and rotations are rare enough that a full flush is cheaper than tracking.
func (c *lifecycleWithKeyCache) RotateKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
	opts RotateKeyOptions,
) (*keysDomain.KeyRecord, error) {
	key, err := c.LifecycleUseCase.RotateKey(ctx, tenantID, keyID, opts)
	c.flush()
	return key, err
}

// RevokeKey revokes through the wrapped use case and flushes the cache.
func (c *lifecycleWithKeyCache) RevokeKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
	reason, performedBy string,
) (*keysDomain.KeyRecord, error) {
	key, err := c.LifecycleUseCase.RevokeKey(ctx, tenantID, keyID, reason, performedBy)
	c.flush()
	return key, err
}

func (c *lifecycleWithKeyCache) flush() {
	c.mu.Lock()
	c.entries = make(map[string]cachedKeyEntry)
	c.mu.Unlock()
}
