package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berios/subtitle-backend/internal/kv"
)

type stubLister struct {
	videos []Video
	calls  atomic.Int64
	err    error
}

func (s *stubLister) ListPublicVideos(_ context.Context) ([]Video, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.videos, nil
}

func TestCache_ListFallsBackToStoreAndWarmsCache(t *testing.T) {
	ctx := context.Background()
	lister := &stubLister{videos: []Video{
		{VideoID: "vid1", Title: "First", AddedAt: time.Now().UTC().Truncate(time.Second)},
		{VideoID: "vid2", Title: "Second", AddedAt: time.Now().UTC().Truncate(time.Second)},
	}}
	c := NewCache(kv.NewMemoryClient(), lister, time.Minute)

	videos, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "vid1", videos[0].VideoID)
	assert.Equal(t, int64(1), lister.calls.Load())

	// Second read is served from the cache.
	videos, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, int64(1), lister.calls.Load())
}

func TestCache_ListPropagatesStoreError(t *testing.T) {
	ctx := context.Background()
	lister := &stubLister{err: errors.New("db down")}
	c := NewCache(kv.NewMemoryClient(), lister, time.Minute)

	_, err := c.List(ctx)
	require.Error(t, err)
}

func TestCache_RefreshRewarms(t *testing.T) {
	ctx := context.Background()
	lister := &stubLister{videos: []Video{{VideoID: "vid1"}}}
	c := NewCache(kv.NewMemoryClient(), lister, time.Minute)

	require.NoError(t, c.Refresh(ctx))

	lister.videos = []Video{{VideoID: "vid1"}, {VideoID: "vid2"}}

	// Still serving the refreshed snapshot, not hitting the store.
	videos, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, videos, 1)

	require.NoError(t, c.Refresh(ctx))
	videos, err = c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, videos, 2)
}

func TestNewRefresher_RejectsBadSchedule(t *testing.T) {
	lister := &stubLister{}
	c := NewCache(kv.NewMemoryClient(), lister, time.Minute)

	_, err := NewRefresher(c, "not a cron expr")
	require.Error(t, err)

	r, err := NewRefresher(c, "@every 1h")
	require.NoError(t, err)
	r.Start()
	r.Stop()
}
