package jobs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/berios/subtitle-backend/internal/kv"
	"github.com/berios/subtitle-backend/pkg/log"
)

// ComputeFunc produces the subtitle payload for a job key. It is supplied by
// the caller and invoked at most once per successful lock acquisition.
type ComputeFunc func(ctx context.Context, jobKey string, params Params) ([]byte, error)

// Resolution is the outcome of an enqueue or fetch: either a finished result
// or a signal that the computation is still in flight.
type Resolution struct {
	Status Status
	Result []byte
}

const defaultExpire = time.Hour

// Resolver serves results through a read-through tiered lookup: hot cache,
// then durable store (re-warming the hot cache), then a freshly triggered
// computation guarded by the job lock. The triggering request is never
// blocked on the computation; completion is observed via polling.
type Resolver struct {
	cache   kv.Client
	store   DurableStore // optional, soft dependency
	locker  *Locker
	compute ComputeFunc

	// expire is the lock and status TTL. It must be safely larger than the
	// worst-case computation latency, since it is the only mechanism that
	// unblocks new attempts after an owner crash.
	expire time.Duration
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

type ResolverOption func(*Resolver)

// WithDurableStore attaches the cold tier.
func WithDurableStore(store DurableStore) ResolverOption {
	return func(r *Resolver) { r.store = store }
}

// WithExpire sets the lock/status TTL.
func WithExpire(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.expire = d
		}
	}
}

// WithMaxConcurrent caps how many computations run at once.
func WithMaxConcurrent(n int64) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(n)
		}
	}
}

func NewResolver(cache kv.Client, compute ComputeFunc, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:   cache,
		locker:  NewLocker(cache),
		compute: compute,
		expire:  defaultExpire,
		sem:     semaphore.NewWeighted(4),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Locker exposes the underlying lock/status state machine.
func (r *Resolver) Locker() *Locker {
	return r.locker
}

// Enqueue resolves jobKey or triggers its computation. It is idempotent:
// repeated calls while a job is in flight return processing without touching
// the owner's lock TTL.
func (r *Resolver) Enqueue(ctx context.Context, jobKey string, params Params) (Resolution, error) {
	// Fast path: the result is already in the hot cache.
	raw, ok, err := r.cache.Get(ctx, resultKey(jobKey))
	if err != nil {
		return Resolution{}, err
	}
	if ok {
		return Resolution{Status: StatusDone, Result: []byte(raw)}, nil
	}

	// Cold tier: a durable hit re-warms the hot cache and completes.
	if rec, found := r.findDurable(ctx, jobKey); found {
		r.warmCache(ctx, jobKey, rec.Payload)
		return Resolution{Status: StatusDone, Result: rec.Payload}, nil
	}

	// An existing lock means another owner is computing. Checking presence
	// instead of re-acquiring keeps the owner's TTL untouched.
	locked, err := r.locker.Locked(ctx, jobKey)
	if err != nil {
		return Resolution{}, err
	}
	if locked {
		return Resolution{Status: StatusProcessing}, nil
	}

	owner, err := r.locker.TryAcquire(ctx, jobKey, r.expire)
	if err != nil {
		return Resolution{}, err
	}
	if !owner {
		return Resolution{Status: StatusProcessing}, nil
	}

	if err := r.locker.SetStatus(ctx, jobKey, StatusProcessing, r.expire); err != nil {
		_ = r.locker.Release(ctx, jobKey)
		return Resolution{}, err
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:          uuid.NewString(),
		JobKey:      jobKey,
		Status:      StatusProcessing,
		RequestedAt: now,
	}
	if r.store != nil {
		if err := r.store.InsertJob(ctx, rec); err != nil {
			log.Error("Failed to persist job record %s for %s: %v", rec.ID, jobKey, err)
		}
	}

	r.dispatch(jobKey, params, rec)
	return Resolution{Status: StatusProcessing}, nil
}

// Status reports the current state of jobKey for polling clients.
func (r *Resolver) Status(ctx context.Context, jobKey string) (Status, error) {
	status, err := r.locker.QueryStatus(ctx, jobKey)
	if err != nil || status != StatusPending {
		return status, err
	}
	// The cache entries may have expired while the durable store still holds
	// the result.
	if _, found := r.findDurable(ctx, jobKey); found {
		return StatusDone, nil
	}
	return StatusPending, nil
}

// FetchResult returns the finished payload for jobKey. Status is done with a
// payload, processing while a computation is in flight, or pending when the
// job is unknown.
func (r *Resolver) FetchResult(ctx context.Context, jobKey string) (Resolution, error) {
	raw, ok, err := r.cache.Get(ctx, resultKey(jobKey))
	if err != nil {
		return Resolution{}, err
	}
	if ok {
		return Resolution{Status: StatusDone, Result: []byte(raw)}, nil
	}

	if rec, found := r.findDurable(ctx, jobKey); found {
		r.warmCache(ctx, jobKey, rec.Payload)
		return Resolution{Status: StatusDone, Result: rec.Payload}, nil
	}

	locked, err := r.locker.Locked(ctx, jobKey)
	if err != nil {
		return Resolution{}, err
	}
	if locked {
		return Resolution{Status: StatusProcessing}, nil
	}
	return Resolution{Status: StatusPending}, nil
}

// Stop waits for in-flight computations to finish.
func (r *Resolver) Stop() {
	r.wg.Wait()
}

func (r *Resolver) dispatch(jobKey string, params Params, rec *Record) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// The triggering request's context is gone by now; the computation
		// runs to completion on its own, bounded only by the lock TTL.
		ctx := context.Background()
		defer func() {
			if err := r.locker.Release(ctx, jobKey); err != nil {
				log.Error("Failed to release lock for %s: %v", jobKey, err)
			}
		}()

		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)

		r.run(ctx, jobKey, params, rec)
	}()
}

func (r *Resolver) run(ctx context.Context, jobKey string, params Params, rec *Record) {
	result, err := r.compute(ctx, jobKey, params)
	now := time.Now().UTC()
	rec.FinishedAt = &now

	if err != nil {
		log.Error("Job %s failed: %v", jobKey, err)
		rec.Status = StatusError
		rec.ErrorMessage = err.Error()
		r.updateJob(ctx, rec)
		if serr := r.locker.SetStatus(ctx, jobKey, StatusError, r.expire); serr != nil {
			log.Error("Failed to publish error status for %s: %v", jobKey, serr)
		}
		return
	}

	if r.store != nil {
		videoID, lang := SplitKey(jobKey)
		res := &ResultRecord{
			JobKey:      jobKey,
			VideoID:     videoID,
			Language:    lang,
			Payload:     result,
			ContentHash: contentHash(result),
			SizeBytes:   len(result),
			GeneratedAt: now,
		}
		if err := r.store.InsertResult(ctx, res); err != nil {
			log.Error("Failed to persist result for %s: %v", jobKey, err)
		}
	}

	r.warmCache(ctx, jobKey, result)
	if err := r.locker.SetStatus(ctx, jobKey, StatusDone, r.expire); err != nil {
		log.Error("Failed to publish done status for %s: %v", jobKey, err)
	}

	rec.Status = StatusDone
	r.updateJob(ctx, rec)
	log.Info("Job %s done (%d bytes)", jobKey, len(result))
}

// warmCache writes the result entry with twice the status TTL so cached
// results outlive the coordination entries around them.
func (r *Resolver) warmCache(ctx context.Context, jobKey string, payload []byte) {
	if _, err := r.cache.Set(ctx, resultKey(jobKey), string(payload), 2*r.expire, false); err != nil {
		log.Error("Failed to warm cache for %s: %v", jobKey, err)
	}
}

// findDurable consults the cold tier, absorbing its failures: an unavailable
// durable store degrades to recomputation, never to an error for the caller.
func (r *Resolver) findDurable(ctx context.Context, jobKey string) (*ResultRecord, bool) {
	if r.store == nil {
		return nil, false
	}
	rec, found, err := r.store.FindLatestResult(ctx, jobKey)
	if err != nil {
		log.Error("Durable store lookup failed for %s: %v", jobKey, err)
		return nil, false
	}
	if !found || rec == nil {
		return nil, false
	}
	return rec, true
}

func (r *Resolver) updateJob(ctx context.Context, rec *Record) {
	if r.store == nil {
		return
	}
	if err := r.store.UpdateJob(ctx, rec); err != nil {
		log.Error("Failed to update job record %s: %v", rec.ID, err)
	}
}

func contentHash(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}
