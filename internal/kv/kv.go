// Package kv provides the shared key-value cache used for job locks, status
// entries, cached results and rate counters. Two interchangeable backends
// implement the same contract: a remote Redis client and an in-process store.
package kv

import (
	"context"
	"time"
)

// Client is the key-value contract shared by both backends. Absence is
// reported through the ok/found return values, never as an error; errors mean
// the backend itself failed.
//
// Set with onlyIfAbsent=true is the atomic set-if-absent primitive that the
// job lock and the rate limiter rely on. Both backends must implement it
// atomically.
type Client interface {
	// Get returns the value for key, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key with the given TTL (0 means no expiry).
	// When onlyIfAbsent is true the write happens only if the key does not
	// already exist; the returned bool reports whether the write was applied.
	Set(ctx context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (bool, error)

	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Incr atomically increments the integer stored at key, creating it at 1
	// when absent, and returns the new value. The key's TTL is not changed.
	Incr(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time to live of key. ok=false means the key
	// is absent; a zero duration with ok=true means the key has no expiry.
	TTL(ctx context.Context, key string) (remaining time.Duration, ok bool, err error)
}
