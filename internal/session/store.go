// Package session keeps lightweight user sessions in the shared key-value
// cache. Sessions are plain JSON documents with a sliding expiry; losing them
// on a cache outage is acceptable, which is why they live in the hot tier
// only.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/berios/subtitle-backend/internal/kv"
)

const keyPrefix = "session:"

const DefaultTTL = 7 * 24 * time.Hour

// Data is the session document. Keys are caller-defined.
type Data map[string]any

type Store struct {
	cache kv.Client
	ttl   time.Duration
}

func NewStore(cache kv.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: cache, ttl: ttl}
}

// Get returns the session document, or ok=false when the session does not
// exist. A corrupt document is treated as absent.
func (s *Store) Get(ctx context.Context, sessionID string) (Data, bool, error) {
	raw, ok, err := s.cache.Get(ctx, keyPrefix+sessionID)
	if err != nil || !ok {
		return nil, false, err
	}
	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false, nil
	}
	return data, true, nil
}

// Save writes the session document with the store's TTL.
func (s *Store) Save(ctx context.Context, sessionID string, data Data) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.cache.Set(ctx, keyPrefix+sessionID, string(payload), s.ttl, false)
	return err
}

// Touch merges updates into an existing session and stamps last_seen_at,
// preserving the session's remaining TTL rather than resetting it. Returns
// ok=false when the session does not exist.
func (s *Store) Touch(ctx context.Context, sessionID string, updates Data) (Data, bool, error) {
	data, ok, err := s.Get(ctx, sessionID)
	if err != nil || !ok {
		return nil, false, err
	}

	for k, v := range updates {
		data[k] = v
	}
	if _, stamped := updates["last_seen_at"]; !stamped {
		data["last_seen_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	ttl := s.ttl
	if remaining, exists, err := s.cache.TTL(ctx, keyPrefix+sessionID); err == nil && exists && remaining > 0 {
		ttl = remaining
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.cache.Set(ctx, keyPrefix+sessionID, string(payload), ttl, false); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.cache.Delete(ctx, keyPrefix+sessionID)
	return err
}
