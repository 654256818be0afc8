package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berios/subtitle-backend/internal/kv"
)

type stubStore struct {
	mu      sync.Mutex
	results map[string]*ResultRecord
	jobs    map[string]*Record
	failing bool
}

func newStubStore() *stubStore {
	return &stubStore{
		results: make(map[string]*ResultRecord),
		jobs:    make(map[string]*Record),
	}
}

func (s *stubStore) FindLatestResult(_ context.Context, jobKey string) (*ResultRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, false, errors.New("store unavailable")
	}
	rec, ok := s.results[jobKey]
	return rec, ok, nil
}

func (s *stubStore) InsertResult(_ context.Context, rec *ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store unavailable")
	}
	s.results[rec.JobKey] = rec
	return nil
}

func (s *stubStore) InsertJob(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store unavailable")
	}
	clone := *rec
	s.jobs[rec.ID] = &clone
	return nil
}

func (s *stubStore) UpdateJob(_ context.Context, rec *Record) error {
	return s.InsertJob(context.Background(), rec)
}

func (s *stubStore) job(id string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	return rec, ok
}

func TestResolver_ConcurrentEnqueueTriggersOneComputation(t *testing.T) {
	ctx := context.Background()
	var computes atomic.Int64
	compute := func(_ context.Context, _ string, _ Params) ([]byte, error) {
		computes.Add(1)
		time.Sleep(50 * time.Millisecond)
		return []byte(`"ok"`), nil
	}
	r := NewResolver(kv.NewMemoryClient(), compute, WithExpire(time.Minute))
	defer r.Stop()

	const n = 20
	statuses := make([]Status, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Enqueue(ctx, "vid123", Params{URL: "https://youtu.be/vid123"})
			statuses[i] = res.Status
			errs[i] = err
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusProcessing, statuses[i])
	}
	require.Eventually(t, func() bool {
		res, err := r.FetchResult(ctx, "vid123")
		return err == nil && res.Status == StatusDone
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), computes.Load())
}

func TestResolver_EnqueueThenFetch(t *testing.T) {
	ctx := context.Background()
	compute := func(_ context.Context, _ string, _ Params) ([]byte, error) {
		time.Sleep(50 * time.Millisecond)
		return []byte(`"ok"`), nil
	}
	r := NewResolver(kv.NewMemoryClient(), compute, WithExpire(time.Minute))
	defer r.Stop()

	res, err := r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Status)

	// An immediate second enqueue is an idempotent no-op.
	res, err = r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Status)

	require.Eventually(t, func() bool {
		res, err := r.FetchResult(ctx, "vid123")
		return err == nil && res.Status == StatusDone && string(res.Result) == `"ok"`
	}, time.Second, 10*time.Millisecond)

	// Once done, every subsequent fetch returns the same result.
	res, err = r.FetchResult(ctx, "vid123")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, res.Status)
	assert.Equal(t, `"ok"`, string(res.Result))

	status, err := r.Status(ctx, "vid123")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status)
}

func TestResolver_ComputeFailureBecomesErrorStatusAndAllowsRetry(t *testing.T) {
	ctx := context.Background()
	var attempts atomic.Int64
	compute := func(_ context.Context, _ string, _ Params) ([]byte, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("asr crashed")
		}
		return []byte(`"ok"`), nil
	}
	store := newStubStore()
	r := NewResolver(kv.NewMemoryClient(), compute,
		WithExpire(time.Minute), WithDurableStore(store))
	defer r.Stop()

	_, err := r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := r.Status(ctx, "vid123")
		return err == nil && status == StatusError
	}, time.Second, 10*time.Millisecond)

	// A failed result is never served as done.
	res, err := r.FetchResult(ctx, "vid123")
	require.NoError(t, err)
	assert.NotEqual(t, StatusDone, res.Status)
	assert.Empty(t, res.Result)

	// The lock was released on the error path, so a fresh attempt may start.
	res, err = r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Status)

	require.Eventually(t, func() bool {
		res, err := r.FetchResult(ctx, "vid123")
		return err == nil && res.Status == StatusDone
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestResolver_DurableHitRewarmsHotCache(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryClient()
	store := newStubStore()
	store.results["vid123"] = &ResultRecord{
		JobKey:      "vid123",
		VideoID:     "vid123",
		Payload:     []byte(`"from cold tier"`),
		GeneratedAt: time.Now().UTC(),
	}

	var computes atomic.Int64
	compute := func(_ context.Context, _ string, _ Params) ([]byte, error) {
		computes.Add(1)
		return []byte(`"recomputed"`), nil
	}
	r := NewResolver(cache, compute, WithExpire(time.Minute), WithDurableStore(store))
	defer r.Stop()

	res, err := r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, res.Status)
	assert.Equal(t, `"from cold tier"`, string(res.Result))
	assert.Equal(t, int64(0), computes.Load())

	// The hot cache was re-warmed by the durable hit.
	raw, ok, err := cache.Get(ctx, resultKey("vid123"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"from cold tier"`, raw)
}

func TestResolver_DurableStoreFailureDegradesToRecompute(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.failing = true

	compute := func(_ context.Context, _ string, _ Params) ([]byte, error) {
		return []byte(`"ok"`), nil
	}
	r := NewResolver(kv.NewMemoryClient(), compute,
		WithExpire(time.Minute), WithDurableStore(store))
	defer r.Stop()

	res, err := r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Status)

	require.Eventually(t, func() bool {
		res, err := r.FetchResult(ctx, "vid123")
		return err == nil && res.Status == StatusDone
	}, time.Second, 10*time.Millisecond)
}

func TestResolver_StuckOwnerRecoversAfterLockTTL(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryClient()
	locker := NewLocker(cache)

	// Simulate a crashed owner: lock held, never released.
	owner, err := locker.TryAcquire(ctx, "vid123", 60*time.Millisecond)
	require.NoError(t, err)
	require.True(t, owner)

	var computes atomic.Int64
	compute := func(_ context.Context, _ string, _ Params) ([]byte, error) {
		computes.Add(1)
		return []byte(`"ok"`), nil
	}
	r := NewResolver(cache, compute, WithExpire(time.Minute))
	defer r.Stop()

	res, err := r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Status)
	assert.Equal(t, int64(0), computes.Load())

	// After the TTL expires a fresh enqueue becomes the new owner.
	require.Eventually(t, func() bool {
		res, err := r.Enqueue(ctx, "vid123", Params{})
		return err == nil && res.Status == StatusDone
	}, time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(1), computes.Load())
}

func TestResolver_JobRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	compute := func(_ context.Context, _ string, _ Params) ([]byte, error) {
		return []byte(`"ok"`), nil
	}
	r := NewResolver(kv.NewMemoryClient(), compute,
		WithExpire(time.Minute), WithDurableStore(store))

	_, err := r.Enqueue(ctx, "vid123", Params{})
	require.NoError(t, err)
	r.Stop()

	store.mu.Lock()
	require.Len(t, store.jobs, 1)
	var rec *Record
	for _, j := range store.jobs {
		rec = j
	}
	store.mu.Unlock()

	assert.Equal(t, "vid123", rec.JobKey)
	assert.Equal(t, StatusDone, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.RequestedAt.IsZero())
	require.NotNil(t, rec.FinishedAt)

	result, ok, err := store.FindLatestResult(ctx, "vid123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"ok"`, string(result.Payload))
	assert.NotEmpty(t, result.ContentHash)
	assert.Equal(t, len(result.Payload), result.SizeBytes)
}
