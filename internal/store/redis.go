package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertEntry(ctx context.Context, entry *model.Entry) error {
	if err := s.primary.InsertEntry(ctx, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, historyKey(entry.Account))
	return nil
}

func (s *CachedStore) SaveStranded(ctx context.Context, sf *model.StrandedFunds) error {
	if err := s.primary.SaveStranded(ctx, sf); err != nil {
		return err
	}
	s.rdb.Del(ctx, strandedKey())
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEntriesByAccount(ctx context.Context, acct model.Account) ([]model.Entry, error) {
	return readThrough(ctx, s, historyKey(acct), func() ([]model.Entry, error) {
		return s.primary.GetEntriesByAccount(ctx, acct)
	})
}

func (s *CachedStore) ListStranded(ctx context.Context) ([]model.StrandedFunds, error) {
	return readThrough(ctx, s, strandedKey(), func() ([]model.StrandedFunds, error) {
		return s.primary.ListStranded(ctx)
	})
}

// --- Passthrough (not cached) ---

// ListRecentEntries bypasses the cache: the limit makes keys unbounded.
func (s *CachedStore) ListRecentEntries(ctx context.Context, limit int) ([]model.Entry, error) {
	return s.primary.ListRecentEntries(ctx, limit)
}

// --- Cache helpers ---

func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func() ([]T, error)) ([]T, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached []T
		if json.Unmarshal(data, &cached) == nil {
			return cached, nil
		}
	}

	// Cache miss: read from primary.
	result, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(result); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return result, nil
}

func historyKey(a model.Account) string { return fmt.Sprintf("history:%s", a) }
func strandedKey() string               { return "stranded" }
