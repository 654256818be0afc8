// Package catalog serves the public listing of known videos. The listing
// comes from the durable store and is cached in the shared key-value cache;
// a cron-driven refresher keeps the cached copy warm so the common read path
// never touches the database.
package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/berios/subtitle-backend/internal/kv"
	"github.com/berios/subtitle-backend/pkg/log"
)

const cacheKey = "videos:catalog"

type Video struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title,omitempty"`
	Uploader    string    `json:"uploader,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	DurationSec int       `json:"duration_sec,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// Lister is the durable-store view the catalog needs.
type Lister interface {
	ListPublicVideos(ctx context.Context) ([]Video, error)
}

type Cache struct {
	cache kv.Client
	store Lister
	ttl   time.Duration
}

func NewCache(cache kv.Client, store Lister, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{cache: cache, store: store, ttl: ttl}
}

// List returns the catalog, serving the cached copy when present and falling
// back to the durable store (re-warming the cache) on a miss.
func (c *Cache) List(ctx context.Context) ([]Video, error) {
	raw, ok, err := c.cache.Get(ctx, cacheKey)
	if err == nil && ok {
		var videos []Video
		if err := json.Unmarshal([]byte(raw), &videos); err == nil {
			return videos, nil
		}
		// Corrupt cached copy: rebuild from the store.
	}

	videos, err := c.store.ListPublicVideos(ctx)
	if err != nil {
		return nil, err
	}
	c.put(ctx, videos)
	return videos, nil
}

// Refresh rebuilds the cached copy from the durable store.
func (c *Cache) Refresh(ctx context.Context) error {
	videos, err := c.store.ListPublicVideos(ctx)
	if err != nil {
		return err
	}
	c.put(ctx, videos)
	return nil
}

func (c *Cache) put(ctx context.Context, videos []Video) {
	payload, err := json.Marshal(videos)
	if err != nil {
		return
	}
	if _, err := c.cache.Set(ctx, cacheKey, string(payload), c.ttl, false); err != nil {
		log.Error("Failed to cache video catalog: %v", err)
	}
}
