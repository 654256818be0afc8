package jobs

import "context"

// DurableStore is the cold tier behind the hot cache. It is a soft
// dependency: when it fails, resolution continues on the hot cache alone and
// results are recomputed instead of recovered.
type DurableStore interface {
	// FindLatestResult returns the newest persisted result for the job key,
	// or ok=false when none exists.
	FindLatestResult(ctx context.Context, jobKey string) (*ResultRecord, bool, error)
	// InsertResult appends a result record; it never overwrites earlier ones.
	InsertResult(ctx context.Context, rec *ResultRecord) error

	InsertJob(ctx context.Context, rec *Record) error
	UpdateJob(ctx context.Context, rec *Record) error
}
