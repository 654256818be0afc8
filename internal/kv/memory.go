package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryClient is the in-process backend. It reproduces the remote backend's
// TTL, absence and set-if-absent semantics with a lock-protected map and lazy
// expiry on access.
type MemoryClient struct {
	mu    sync.Mutex
	store map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		store: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// purgeExpiredLocked drops key if its expiry has passed. Callers must hold mu.
func (c *MemoryClient) purgeExpiredLocked(key string) {
	entry, ok := c.store[key]
	if !ok {
		return
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(c.now()) {
		delete(c.store, key)
	}
}

func (c *MemoryClient) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(key)
	entry, ok := c.store[key]
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(key)
	if onlyIfAbsent {
		if _, exists := c.store[key]; exists {
			return false, nil
		}
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.store[key] = entry
	return true, nil
}

func (c *MemoryClient) Delete(_ context.Context, keys ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range keys {
		c.purgeExpiredLocked(key)
		if _, ok := c.store[key]; ok {
			delete(c.store, key)
			removed++
		}
	}
	return removed, nil
}

func (c *MemoryClient) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(key)
	_, ok := c.store[key]
	return ok, nil
}

func (c *MemoryClient) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(key)
	entry := c.store[key]
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	// Incrementing preserves whatever expiry the counter already has.
	entry.value = strconv.FormatInt(n, 10)
	c.store[key] = entry
	return n, nil
}

func (c *MemoryClient) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(key)
	entry, ok := c.store[key]
	if !ok {
		return 0, false, nil
	}
	if entry.expiresAt.IsZero() {
		return 0, true, nil
	}
	remaining := entry.expiresAt.Sub(c.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}
