package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
)

// ErrCacheMiss is returned by CacheClient.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns ErrCacheMiss if the key is not present.
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// cachedLookup is what is stored per token. Valid entries cache the absence
// of a record so hot tokens do not hit the real store on every send.
type cachedLookup struct {
	Invalid *dispatch.InvalidToken `json:"invalid,omitempty"`
}

// CachedInvalidTokenStore is a Decorator that adds Read-Aside caching to any
// InvalidTokenStore.
type CachedInvalidTokenStore struct {
	realStore dispatch.InvalidTokenStore
	cache     CacheClient
	ttl       time.Duration
	now       func() time.Time
}

func NewCachedInvalidTokenStore(realStore dispatch.InvalidTokenStore, cache CacheClient, ttl time.Duration) *CachedInvalidTokenStore {
	return &CachedInvalidTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		now:       time.Now,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedInvalidTokenStore) Lookup(ctx context.Context, token string) (*dispatch.InvalidToken, error) {
	key := s.cacheKey(token)

	// 1. Try Cache
	var cached cachedLookup
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		if cached.Invalid != nil && cached.Invalid.Expired(s.now()) {
			return nil, nil
		}
		return cached.Invalid, nil
	}

	// 2. Fallback to Real Store
	rec, err := s.realStore.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	// 3. Populate Cache (Fire and Forget)
	// If Redis is down, we just serve from the real store.
	_ = s.cache.Set(ctx, key, cachedLookup{Invalid: rec}, s.entryTTL(rec))

	return rec, nil
}

// List always reads the real store; it is an operator path.
func (s *CachedInvalidTokenStore) List(ctx context.Context) ([]dispatch.InvalidToken, error) {
	return s.realStore.List(ctx)
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedInvalidTokenStore) MarkInvalid(ctx context.Context, rec dispatch.InvalidToken) error {
	if err := s.realStore.MarkInvalid(ctx, rec); err != nil {
		return err
	}
	return s.invalidate(ctx, rec.Token)
}

// Clear must drop the cached entry too, or a reinstated token stays blocked
// until the entry expires.
func (s *CachedInvalidTokenStore) Clear(ctx context.Context, token string) error {
	if err := s.realStore.Clear(ctx, token); err != nil {
		return err
	}
	return s.invalidate(ctx, token)
}

// --- Helpers ---

func (s *CachedInvalidTokenStore) invalidate(ctx context.Context, token string) error {
	return s.cache.Del(ctx, s.cacheKey(token))
}

// entryTTL never lets a cached record outlive its own expiry.
func (s *CachedInvalidTokenStore) entryTTL(rec *dispatch.InvalidToken) time.Duration {
	if rec == nil || rec.ExpiresAt.IsZero() {
		return s.ttl
	}
	if left := rec.ExpiresAt.Sub(s.now()); left < s.ttl {
		return max(left, time.Second)
	}
	return s.ttl
}

func (s *CachedInvalidTokenStore) cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "apns:invalid:" + hex.EncodeToString(sum[:])
}
