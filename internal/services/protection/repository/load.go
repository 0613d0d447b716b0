package repository

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/louisbranch/wardstone/internal/services/protection/codec"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
	"go.opentelemetry.io/otel/trace"
)

// Load returns the protection with id. Absence and storage failures both
// report false; failures are logged.
func (r *Repository) Load(ctx context.Context, id int64) (*domain.Protection, bool) {
	if p, ok := r.cache.Get(id); ok {
		return p, true
	}
	ctx, span := r.tracer.Start(ctx, "repository.Load", trace.WithAttributes(idAttr(id)))
	defer span.End()

	record, err := r.store.GetProtection(ctx, id)
	if err == nil {
		return r.adopt(record), true
	}
	if !errors.Is(err, storage.ErrNotFound) {
		span.RecordError(err)
		r.logf("repository: load protection %d: %v", id, err)
		return nil, false
	}
	if !r.legacyPending() {
		return nil, false
	}
	legacy, err := r.store.GetLegacyProtection(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			span.RecordError(err)
			r.logf("repository: load legacy protection %d: %v", id, err)
		}
		return nil, false
	}
	return r.convertLegacy(ctx, legacy)
}

// LoadAt returns the protection at loc. Once the cache holds every stored
// protection a cache miss is final.
func (r *Repository) LoadAt(ctx context.Context, loc domain.Location) (*domain.Protection, bool) {
	if p, ok := r.cache.GetAt(loc.Key()); ok {
		return p, true
	}
	if r.complete() {
		return nil, false
	}
	ctx, span := r.tracer.Start(ctx, "repository.LoadAt", trace.WithAttributes(locationAttr(loc)))
	defer span.End()

	record, err := r.store.GetProtectionAt(ctx, loc)
	if err == nil {
		return r.adopt(record), true
	}
	if !errors.Is(err, storage.ErrNotFound) {
		span.RecordError(err)
		r.logf("repository: load protection at %s: %v", loc, err)
		return nil, false
	}
	if !r.legacyPending() {
		return nil, false
	}
	legacy, err := r.store.GetLegacyProtectionAt(ctx, loc)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			span.RecordError(err)
			r.logf("repository: load legacy protection at %s: %v", loc, err)
		}
		return nil, false
	}
	return r.convertLegacy(ctx, legacy)
}

// convertLegacy moves one staged legacy row into the protections table. The
// legacy row is deleted afterwards so the migration cannot overwrite newer
// writes with it.
func (r *Repository) convertLegacy(ctx context.Context, legacy storage.LegacyProtectionRecord) (*domain.Protection, bool) {
	owner, err := r.registry.ResolveLegacy(ctx, legacy.Owner)
	if err != nil {
		r.logf("repository: convert legacy protection %d: %v", legacy.ID, err)
		return nil, false
	}
	record := codec.FromLegacy(legacy, owner)
	if err := r.store.UpsertProtection(ctx, record); err != nil {
		r.logf("repository: convert legacy protection %d: %v", legacy.ID, err)
		return nil, false
	}
	if err := r.store.DeleteLegacyProtection(ctx, legacy.ID); err != nil {
		r.logf("repository: drop converted legacy protection %d: %v", legacy.ID, err)
	}
	r.generation++
	r.cache.AdjustLiveCount(1)
	return r.adopt(record), true
}

// LoadInRange returns every protection inside bounds sorted by id. With a
// complete cache it answers from memory, looking up each cell of bounds when the
// cache is large and bounds holds fewer cells than the cache, and scanning the
// whole cache otherwise.
func (r *Repository) LoadInRange(ctx context.Context, bounds domain.Bounds) []*domain.Protection {
	bounds = bounds.Normalized()
	if r.complete() {
		var found []*domain.Protection
		size := r.cache.Size()
		if size < r.threshold || bounds.Volume() >= int64(size) {
			r.cache.Each(func(p *domain.Protection) bool {
				if bounds.Contains(p.Location) {
					found = append(found, p)
				}
				return true
			})
		} else {
			found = r.lookupCells(bounds)
		}
		sortByID(found)
		return found
	}

	ctx, span := r.tracer.Start(ctx, "repository.LoadInRange")
	defer span.End()
	records, err := r.store.ListProtectionsInBounds(ctx, bounds)
	if err != nil {
		span.RecordError(err)
		r.logf("repository: load protections in range: %v", err)
		return nil
	}
	found := r.adoptAll(records)
	sortByID(found)
	return found
}

func (r *Repository) lookupCells(bounds domain.Bounds) []*domain.Protection {
	var found []*domain.Protection
	// Each loop exits after its last cell so a bound at math.MaxInt cannot wrap.
	for x := bounds.MinX; ; x++ {
		for y := bounds.MinY; ; y++ {
			for z := bounds.MinZ; ; z++ {
				loc := domain.Location{World: bounds.World, X: x, Y: y, Z: z}
				if p, ok := r.cache.GetAt(loc.Key()); ok {
					found = append(found, p)
				}
				if z == bounds.MaxZ {
					break
				}
			}
			if y == bounds.MaxY {
				break
			}
		}
		if x == bounds.MaxX {
			break
		}
	}
	return found
}

// LoadByOwner returns one page of an owner's protections.
func (r *Repository) LoadByOwner(ctx context.Context, ownerID int64, page storage.Page) []*domain.Protection {
	ctx, span := r.tracer.Start(ctx, "repository.LoadByOwner")
	defer span.End()
	records, err := r.store.ListProtectionsByOwner(ctx, ownerID, page)
	if err != nil {
		span.RecordError(err)
		r.logf("repository: load protections of player %d: %v", ownerID, err)
		return nil
	}
	return r.adoptAll(records)
}

// LoadByKind returns every protection of kind.
func (r *Repository) LoadByKind(ctx context.Context, kind domain.Kind) []*domain.Protection {
	ctx, span := r.tracer.Start(ctx, "repository.LoadByKind")
	defer span.End()
	records, err := r.store.ListProtectionsByKind(ctx, int(kind))
	if err != nil {
		span.RecordError(err)
		r.logf("repository: load %s protections: %v", kind, err)
		return nil
	}
	return r.adoptAll(records)
}

// LoadAll returns every converted protection.
func (r *Repository) LoadAll(ctx context.Context) []*domain.Protection {
	ctx, span := r.tracer.Start(ctx, "repository.LoadAll")
	defer span.End()
	records, err := r.store.ListProtections(ctx)
	if err != nil {
		span.RecordError(err)
		r.logf("repository: load protections: %v", err)
		return nil
	}
	return r.adoptAll(records)
}

// TotalCount returns the number of stored protections.
func (r *Repository) TotalCount(ctx context.Context) int64 {
	if n := r.cache.LiveCount(); n >= 0 {
		return n
	}
	n, err := r.store.CountProtections(ctx)
	if err != nil {
		r.logf("repository: count protections: %v", err)
		return 0
	}
	return n
}

// CountByKind returns the number of protections of kind.
func (r *Repository) CountByKind(ctx context.Context, kind domain.Kind) int64 {
	n, err := r.store.CountProtectionsByKind(ctx, int(kind))
	if err != nil {
		r.logf("repository: count %s protections: %v", kind, err)
		return 0
	}
	return n
}

// CountByOwner returns the number of protections owned by ownerID.
func (r *Repository) CountByOwner(ctx context.Context, ownerID int64) int64 {
	n, err := r.store.CountProtectionsByOwner(ctx, ownerID)
	if err != nil {
		r.logf("repository: count protections of player %d: %v", ownerID, err)
		return 0
	}
	return n
}

// CountByOwnerAndBlock returns the number of protections of one block type
// owned by ownerID.
func (r *Repository) CountByOwnerAndBlock(ctx context.Context, ownerID int64, blockID int) int64 {
	n, err := r.store.CountProtectionsByOwnerAndBlock(ctx, ownerID, blockID)
	if err != nil {
		r.logf("repository: count block %d protections of player %d: %v", blockID, ownerID, err)
		return 0
	}
	return n
}

func (r *Repository) adoptAll(records []storage.ProtectionRecord) []*domain.Protection {
	out := make([]*domain.Protection, 0, len(records))
	for _, record := range records {
		out = append(out, r.adopt(record))
	}
	return out
}

func sortByID(list []*domain.Protection) {
	slices.SortFunc(list, func(a, b *domain.Protection) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
