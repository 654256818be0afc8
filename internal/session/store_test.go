package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berios/subtitle-backend/internal/kv"
)

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryClient(), time.Hour)

	require.NoError(t, store.Save(ctx, "sess1", Data{"user": "anon", "videos": float64(3)}))

	data, ok, err := store.Get(ctx, "sess1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "anon", data["user"])
	assert.Equal(t, float64(3), data["videos"])

	_, ok, err = store.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_TouchMergesAndStampsLastSeen(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryClient(), time.Hour)

	require.NoError(t, store.Save(ctx, "sess1", Data{"user": "anon"}))

	data, ok, err := store.Touch(ctx, "sess1", Data{"last_video": "vid123"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "anon", data["user"])
	assert.Equal(t, "vid123", data["last_video"])
	assert.NotEmpty(t, data["last_seen_at"])
}

func TestStore_TouchMissingSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryClient(), time.Hour)

	_, ok, err := store.Touch(ctx, "ghost", Data{"k": "v"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_TouchPreservesRemainingTTL(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryClient()
	store := NewStore(cache, time.Hour)

	require.NoError(t, store.Save(ctx, "sess1", Data{"user": "anon"}))

	_, ok, err := store.Touch(ctx, "sess1", Data{"k": "v"})
	require.NoError(t, err)
	require.True(t, ok)

	// The TTL must not have been reset to the full hour plus slack; it can
	// only have shrunk since the save.
	remaining, exists, err := cache.TTL(ctx, "session:sess1")
	require.NoError(t, err)
	require.True(t, exists)
	assert.LessOrEqual(t, remaining, time.Hour)
	assert.Greater(t, remaining, 59*time.Minute)
}

func TestStore_CorruptSessionTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryClient()
	store := NewStore(cache, time.Hour)

	_, err := cache.Set(ctx, "session:bad", "{not json", time.Hour, false)
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryClient(), time.Hour)

	require.NoError(t, store.Save(ctx, "sess1", Data{"user": "anon"}))
	require.NoError(t, store.Delete(ctx, "sess1"))

	_, ok, err := store.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.False(t, ok)
}
