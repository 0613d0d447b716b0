package repository

import (
	"context"

	apperrors "github.com/louisbranch/wardstone/internal/platform/errors"
	"github.com/louisbranch/wardstone/internal/services/protection/codec"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
)

// PrecacheJob reads the newest protections for the cache. Fetch may run on
// any goroutine; the batch it returns must be applied on the goroutine that
// owns the repository.
type PrecacheJob struct {
	store      Store
	limit      int
	generation uint64
	logf       func(string, ...any)
}

// PrecacheBatch is the result of a PrecacheJob.
type PrecacheBatch struct {
	Protections []*domain.Protection
	LiveCount   int64
	generation  uint64
}

// NewPrecacheJob prepares a fetch of up to limit protections. A limit of zero
// or less uses the configured cache size.
func (r *Repository) NewPrecacheJob(limit int) *PrecacheJob {
	if limit <= 0 {
		limit = r.cacheSize
	}
	return &PrecacheJob{store: r.store, limit: limit, generation: r.generation, logf: r.logf}
}

// Fetch reads the live count and the newest rows.
func (j *PrecacheJob) Fetch(ctx context.Context) (PrecacheBatch, error) {
	count, err := j.store.CountProtections(ctx)
	if err != nil {
		return PrecacheBatch{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "count protections", err)
	}
	records, err := j.store.ListRecentProtections(ctx, j.limit)
	if err != nil {
		return PrecacheBatch{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "load recent protections", err)
	}
	batch := PrecacheBatch{
		Protections: make([]*domain.Protection, 0, len(records)),
		LiveCount:   count,
		generation:  j.generation,
	}
	for _, record := range records {
		p, err := codec.DecodeProtection(record)
		if err != nil {
			j.logf("repository: %v", err)
		}
		batch.Protections = append(batch.Protections, p)
	}
	return batch, nil
}

// ApplyPrecache replaces the cache contents with batch. A batch fetched
// before a later write is discarded and false is returned.
func (r *Repository) ApplyPrecache(batch PrecacheBatch) bool {
	if batch.generation != r.generation {
		r.logf("repository: discarding stale precache of %d protections", len(batch.Protections))
		return false
	}
	r.cache.Clear()
	for _, p := range batch.Protections {
		r.cache.Put(p)
	}
	r.cache.SetLiveCount(batch.LiveCount)
	return true
}

// Precache fetches and applies a batch on the calling goroutine and returns
// the number of cached protections.
func (r *Repository) Precache(ctx context.Context, limit int) (int, error) {
	ctx, span := r.tracer.Start(ctx, "repository.Precache")
	defer span.End()

	batch, err := r.NewPrecacheJob(limit).Fetch(ctx)
	if err != nil {
		return 0, r.fail(span, err)
	}
	r.ApplyPrecache(batch)
	return r.cache.Size(), nil
}
