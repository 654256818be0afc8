package jobs

import (
	"context"
	"time"

	"github.com/berios/subtitle-backend/internal/kv"
)

// Locker enforces at-most-one active computation per job key through an
// atomic set-if-absent entry in the shared cache, and publishes a separate
// status entry that clients can poll without holding the lock.
type Locker struct {
	cache kv.Client
}

func NewLocker(cache kv.Client) *Locker {
	return &Locker{cache: cache}
}

// TryAcquire attempts to become the owner for jobKey. Exactly one concurrent
// caller gets owner=true; everyone else must treat the job as processing and
// perform no side effects. The TTL bounds how long a crashed owner can block
// new attempts.
func (l *Locker) TryAcquire(ctx context.Context, jobKey string, ttl time.Duration) (owner bool, err error) {
	return l.cache.Set(ctx, lockKey(jobKey), "1", ttl, true)
}

// Release deletes the lock entry. The owner must call it on every exit path;
// otherwise new attempts are starved until the TTL expires.
func (l *Locker) Release(ctx context.Context, jobKey string) error {
	_, err := l.cache.Delete(ctx, lockKey(jobKey))
	return err
}

// Locked reports whether a lock entry currently exists for jobKey.
func (l *Locker) Locked(ctx context.Context, jobKey string) (bool, error) {
	return l.cache.Exists(ctx, lockKey(jobKey))
}

// SetStatus publishes a poll-readable status for jobKey, independent of the
// lock entry.
func (l *Locker) SetStatus(ctx context.Context, jobKey string, status Status, ttl time.Duration) error {
	_, err := l.cache.Set(ctx, statusKey(jobKey), string(status), ttl, false)
	return err
}

// QueryStatus derives the job status from the cache. The decision table, in
// order: explicit status entry; completed result entry (done); lock entry
// (processing); otherwise pending.
func (l *Locker) QueryStatus(ctx context.Context, jobKey string) (Status, error) {
	raw, ok, err := l.cache.Get(ctx, statusKey(jobKey))
	if err != nil {
		return StatusPending, err
	}
	if ok {
		switch Status(raw) {
		case StatusPending, StatusProcessing, StatusDone, StatusError:
			return Status(raw), nil
		}
		// Unknown value: fall through to the presence checks.
	}

	hasResult, err := l.cache.Exists(ctx, resultKey(jobKey))
	if err != nil {
		return StatusPending, err
	}
	if hasResult {
		return StatusDone, nil
	}

	locked, err := l.Locked(ctx, jobKey)
	if err != nil {
		return StatusPending, err
	}
	if locked {
		return StatusProcessing, nil
	}
	return StatusPending, nil
}
