package kv

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berios/subtitle-backend/pkg/log"
)

// Resilient wraps a remote backend and fails over to an in-process store when
// the remote becomes unreachable. The switch is one-directional for the life
// of the instance: once a connectivity error is seen, every later call goes
// to the fallback. A fresh instance (next process start) retries the remote.
//
// Only connectivity failures trigger the switch; logical outcomes such as an
// absent key are normal results and pass through unchanged.
type Resilient struct {
	remote   Client
	fallback Client

	degraded atomic.Bool
	logOnce  sync.Once
}

func NewResilient(remote Client, fallback Client) *Resilient {
	if fallback == nil {
		fallback = NewMemoryClient()
	}
	return &Resilient{remote: remote, fallback: fallback}
}

// Degraded reports whether the instance has switched to the fallback store.
func (r *Resilient) Degraded() bool {
	return r.degraded.Load()
}

func (r *Resilient) switchToFallback() {
	r.degraded.Store(true)
	r.logOnce.Do(func() {
		log.Warn("Cache backend unavailable; falling back to in-memory store")
	})
}

func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (r *Resilient) Get(ctx context.Context, key string) (string, bool, error) {
	if r.degraded.Load() {
		return r.fallback.Get(ctx, key)
	}
	value, ok, err := r.remote.Get(ctx, key)
	if isConnectivityError(err) {
		r.switchToFallback()
		return r.fallback.Get(ctx, key)
	}
	return value, ok, err
}

func (r *Resilient) Set(ctx context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (bool, error) {
	if r.degraded.Load() {
		return r.fallback.Set(ctx, key, value, ttl, onlyIfAbsent)
	}
	accepted, err := r.remote.Set(ctx, key, value, ttl, onlyIfAbsent)
	if isConnectivityError(err) {
		r.switchToFallback()
		return r.fallback.Set(ctx, key, value, ttl, onlyIfAbsent)
	}
	return accepted, err
}

func (r *Resilient) Delete(ctx context.Context, keys ...string) (int, error) {
	if r.degraded.Load() {
		return r.fallback.Delete(ctx, keys...)
	}
	n, err := r.remote.Delete(ctx, keys...)
	if isConnectivityError(err) {
		r.switchToFallback()
		return r.fallback.Delete(ctx, keys...)
	}
	return n, err
}

func (r *Resilient) Exists(ctx context.Context, key string) (bool, error) {
	if r.degraded.Load() {
		return r.fallback.Exists(ctx, key)
	}
	ok, err := r.remote.Exists(ctx, key)
	if isConnectivityError(err) {
		r.switchToFallback()
		return r.fallback.Exists(ctx, key)
	}
	return ok, err
}

func (r *Resilient) Incr(ctx context.Context, key string) (int64, error) {
	if r.degraded.Load() {
		return r.fallback.Incr(ctx, key)
	}
	n, err := r.remote.Incr(ctx, key)
	if isConnectivityError(err) {
		r.switchToFallback()
		return r.fallback.Incr(ctx, key)
	}
	return n, err
}

func (r *Resilient) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if r.degraded.Load() {
		return r.fallback.TTL(ctx, key)
	}
	remaining, ok, err := r.remote.TTL(ctx, key)
	if isConnectivityError(err) {
		r.switchToFallback()
		return r.fallback.TTL(ctx, key)
	}
	return remaining, ok, err
}
