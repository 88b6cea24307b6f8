package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()

	store, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "v1", time.Minute))

	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)
}

func TestRedisStore_MissOnAbsentKey(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.Get(context.Background(), "absent")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_TTLEviction(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "v1", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := store.Get(ctx, "k1")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryStore_TTLEviction(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "v1", 10*time.Millisecond))

	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	time.Sleep(20 * time.Millisecond)
	_, err = store.Get(ctx, "k1")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryStore_LastWriterWins(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "old", 0))
	require.NoError(t, store.Set(ctx, "k1", "new", 0))

	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "new", val)
}

func TestTieredStore_FallsBackWhenPrimaryDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()

	primary, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)

	secondary := NewMemoryStore(time.Minute)
	defer secondary.Close()

	tiered := NewTieredStore(primary, secondary, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, "k1", "v1", time.Minute))

	// Kill the primary tier; the secondary copy must still serve reads.
	mr.Close()

	val, err := tiered.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)
}

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ec := NewEmbeddingCache(store, time.Minute)
	ctx := context.Background()

	_, err := ec.Get(ctx, "what is the refund policy")
	assert.True(t, IsCacheMiss(err))

	vec := []float64{0.1, 0.2, 0.3}
	require.NoError(t, ec.Put(ctx, "what is the refund policy", vec))

	got, err := ec.Get(ctx, "what is the refund policy")
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestResultCache_KeyedByDomainAndQuery(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	rc := NewResultCache(store, time.Minute)
	ctx := context.Background()

	entry := &ResultEntry{
		ChunkIDs: []string{"doc1#chunk0", "doc2#chunk3"},
		Domain:   "billing",
		TopK:     5,
		CachedAt: time.Now(),
	}
	require.NoError(t, rc.Put(ctx, "billing", "refund policy", entry))

	got, err := rc.Get(ctx, "billing", "refund policy")
	require.NoError(t, err)
	assert.Equal(t, entry.ChunkIDs, got.ChunkIDs)

	// Same query under a different domain is a distinct key.
	_, err = rc.Get(ctx, "shipping", "refund policy")
	assert.True(t, IsCacheMiss(err))
}
