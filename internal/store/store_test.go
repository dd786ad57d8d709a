package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
	"github.com/atmx/vault-engine/internal/store"
)

var (
	alice = model.NewAccount("alice")
	bob   = model.NewAccount("bob")
)

func entry(id, kind string, acct model.Account, at time.Time) *model.Entry {
	return &model.Entry{
		ID:        id,
		Kind:      kind,
		Account:   acct,
		AssetIn:   "ledger-a",
		AmountIn:  num.NewNat(100),
		Receipts:  []model.BlockIndex{1},
		Timestamp: at,
	}
}

func TestMemoryStore_EntriesByAccount(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	ms.InsertEntry(ctx, entry("1", model.KindDeposit, alice, now))
	ms.InsertEntry(ctx, entry("2", model.KindDeposit, bob, now.Add(time.Second)))
	ms.InsertEntry(ctx, entry("3", model.KindWithdraw, alice, now.Add(2*time.Second)))

	got, err := ms.GetEntriesByAccount(ctx, alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("expected entries [1 3] for alice, got %+v", got)
	}
}

func TestMemoryStore_EntriesAreCopied(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	e := entry("1", model.KindSwap, alice, time.Now())
	ms.InsertEntry(ctx, e)
	e.Receipts[0] = 99
	e.Kind = "mutated"

	got, _ := ms.GetEntriesByAccount(ctx, alice)
	if got[0].Kind != model.KindSwap || got[0].Receipts[0] != 1 {
		t.Errorf("stored entry was mutated through caller's pointer: %+v", got[0])
	}
}

func TestMemoryStore_ListRecentNewestFirst(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		ms.InsertEntry(ctx, entry(id, model.KindDeposit, alice, now.Add(time.Duration(i)*time.Second)))
	}

	got, _ := ms.ListRecentEntries(ctx, 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("expected [c b], got %+v", got)
	}
	all, _ := ms.ListRecentEntries(ctx, 0)
	if len(all) != 3 {
		t.Errorf("limit 0 should return everything, got %d", len(all))
	}
}

func TestMemoryStore_StrandedUpsert(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	sf := &model.StrandedFunds{ID: "s1", Account: alice, Asset: "ledger-a", Amount: num.NewNat(5), CreatedAt: now}
	ms.SaveStranded(ctx, sf)
	ms.SaveStranded(ctx, &model.StrandedFunds{ID: "s0", Account: bob, CreatedAt: now.Add(-time.Minute)})

	resolved := now.Add(time.Minute)
	sf.ResolvedAt = &resolved
	ms.SaveStranded(ctx, sf)

	got, _ := ms.ListStranded(ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "s0" {
		t.Errorf("expected oldest first, got %s", got[0].ID)
	}
	if got[1].ResolvedAt == nil {
		t.Error("upsert should keep the resolution timestamp")
	}
}

// --- Cached store ---

// fakeRedis implements the three commands CachedStore issues.
type fakeRedis struct {
	redis.Cmdable
	data map[string][]byte
	hits int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	f.hits++
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestCachedStore_ReadThroughAndInvalidate(t *testing.T) {
	primary := store.NewMemoryStore()
	rdb := newFakeRedis()
	cs := store.NewCachedStore(primary, rdb, time.Minute)
	ctx := context.Background()

	cs.InsertEntry(ctx, entry("1", model.KindDeposit, alice, time.Now()))

	first, err := cs.GetEntriesByAccount(ctx, alice)
	if err != nil || len(first) != 1 {
		t.Fatalf("first read = %+v, %v", first, err)
	}
	if rdb.hits != 0 {
		t.Fatal("first read should miss the cache")
	}

	second, _ := cs.GetEntriesByAccount(ctx, alice)
	if rdb.hits != 1 {
		t.Fatal("second read should hit the cache")
	}
	if !second[0].AmountIn.Equal(num.NewNat(100)) || second[0].Account != alice {
		t.Errorf("cached entry did not round-trip: %+v", second[0])
	}

	cs.InsertEntry(ctx, entry("2", model.KindWithdraw, alice, time.Now()))
	third, _ := cs.GetEntriesByAccount(ctx, alice)
	if len(third) != 2 {
		t.Errorf("insert should invalidate the cached history, got %d entries", len(third))
	}
}

func TestCachedStore_StrandedInvalidation(t *testing.T) {
	cs := store.NewCachedStore(store.NewMemoryStore(), newFakeRedis(), time.Minute)
	ctx := context.Background()

	cs.SaveStranded(ctx, &model.StrandedFunds{ID: "s1", Account: alice, Amount: num.NewNat(1), CreatedAt: time.Now()})
	if got, _ := cs.ListStranded(ctx); len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	cs.SaveStranded(ctx, &model.StrandedFunds{ID: "s2", Account: bob, Amount: num.NewNat(2), CreatedAt: time.Now()})
	if got, _ := cs.ListStranded(ctx); len(got) != 2 {
		t.Errorf("save should invalidate the cached list, got %d", len(got))
	}
}
