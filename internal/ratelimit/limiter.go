// Package ratelimit implements a fixed-window request limiter on top of the
// shared key-value cache. Windows reset at discrete boundaries, so a burst of
// up to twice the maximum can span two adjacent windows; that approximation
// is part of the contract.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/berios/subtitle-backend/internal/kv"
)

const keyPrefix = "rate_limit:"

type Limiter struct {
	cache  kv.Client
	max    int
	window time.Duration
}

// New builds a limiter admitting at most max requests per identifier within
// each window.
func New(cache kv.Client, max int, window time.Duration) *Limiter {
	return &Limiter{cache: cache, max: max, window: window}
}

// Allow records a request for identifier and reports whether it is admitted.
// The counter is created atomically at 1 with the window TTL; within an
// existing window it is read and, when below the maximum, atomically
// incremented. A rejected request does not grow the counter.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := keyPrefix + identifier

	created, err := l.cache.Set(ctx, key, "1", l.window, true)
	if err != nil {
		return false, err
	}
	if created {
		return true, nil
	}

	raw, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		// The window expired between the two calls; start a fresh one.
		_, err := l.cache.Set(ctx, key, "1", l.window, true)
		return true, err
	}

	count, convErr := strconv.Atoi(raw)
	if convErr != nil {
		count = 0
	}
	if count >= l.max {
		return false, nil
	}

	if _, err := l.cache.Incr(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}
