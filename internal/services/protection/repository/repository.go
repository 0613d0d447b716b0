// Package repository is the single entry point for protection persistence.
// It fronts storage with the protection cache, consults the migration
// pipeline to decide whether misses must also check legacy tables, and
// appends audit entries to the history ledger.
//
// A Repository is owned by one goroutine (the tick loop). Reads log storage
// failures and report absence; writes return coded errors.
package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/louisbranch/wardstone/internal/platform/errors"
	platformotel "github.com/louisbranch/wardstone/internal/platform/otel"
	"github.com/louisbranch/wardstone/internal/services/protection/cache"
	"github.com/louisbranch/wardstone/internal/services/protection/codec"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/history"
	"github.com/louisbranch/wardstone/internal/services/protection/identity"
	"github.com/louisbranch/wardstone/internal/services/protection/migration"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCacheSize is the precache size when none is configured.
	DefaultCacheSize = 10000
	// DefaultRangeScanThreshold is the cache size below which range queries
	// scan the whole cache instead of probing every cell.
	DefaultRangeScanThreshold = 1000
)

// Store is the storage a repository runs on.
type Store interface {
	storage.Store
	Upgrade(ctx context.Context) (int, error)
}

// Options configures a Repository.
type Options struct {
	CacheSize          int
	RangeScanThreshold int
	MigrationBatchSize int
	HistoryEnabled     bool
	Resolver           identity.Resolver
	Logf               func(string, ...any)
	Now                func() time.Time
}

// Repository loads, saves, registers and removes protections.
type Repository struct {
	store     Store
	cache     *cache.Cache
	registry  *identity.Registry
	ledger    *history.Ledger
	pipeline  *migration.Pipeline
	cacheSize int
	threshold int
	logf      func(string, ...any)
	now       func() time.Time
	tracer    trace.Tracer

	// generation changes on every write that can make a precache batch
	// fetched before it stale.
	generation uint64
}

// New wires a repository over store. Call Initialize before use.
func New(store Store, opts Options) *Repository {
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	threshold := opts.RangeScanThreshold
	if threshold <= 0 {
		threshold = DefaultRangeScanThreshold
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var registryOpts []identity.Option
	if opts.Resolver != nil {
		registryOpts = append(registryOpts, identity.WithResolver(opts.Resolver))
	}
	registry := identity.NewRegistry(store, registryOpts...)
	pipeline := migration.New(
		migration.NewStateStore(store),
		migration.LegacyStages(store, registry, logf),
		migration.Options{BatchSize: opts.MigrationBatchSize, Logf: logf},
	)
	ledger := history.NewLedger(store, registry, history.Options{Enabled: opts.HistoryEnabled, Now: now})
	ledger.SetLegacyPending(func() bool { return pipeline.Pending(migration.StageHistory) })

	return &Repository{
		store:     store,
		cache:     cache.New(cacheSize),
		registry:  registry,
		ledger:    ledger,
		pipeline:  pipeline,
		cacheSize: cacheSize,
		threshold: threshold,
		logf:      logf,
		now:       now,
		tracer:    platformotel.Tracer("wardstone/repository"),
	}
}

// Initialize upgrades the schema, loads the migration position and records
// the live protection count.
func (r *Repository) Initialize(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "repository.Initialize")
	defer span.End()

	version, err := r.store.Upgrade(ctx)
	if err != nil {
		return r.fail(span, apperrors.Wrap(apperrors.CodeStorageUnavailable, "upgrade schema", err))
	}
	span.SetAttributes(attribute.Int("schema.version", version))

	legacy, err := r.store.HasLegacyRows(ctx)
	if err != nil {
		return r.fail(span, apperrors.Wrap(apperrors.CodeStorageUnavailable, "detect legacy rows", err))
	}
	if err := r.pipeline.Load(ctx, legacy); err != nil {
		return r.fail(span, apperrors.Wrap(apperrors.CodeMigrationFailed, "load migration state", err))
	}
	if err := r.refreshLiveCount(ctx); err != nil {
		return r.fail(span, err)
	}
	r.logf("repository: schema version %d, migration %s, %d protections", version, r.pipeline.State(), r.cache.LiveCount())
	return nil
}

// Cache exposes the protection cache to collaborators on the tick goroutine.
func (r *Repository) Cache() *cache.Cache {
	return r.cache
}

// Registry returns the identity registry.
func (r *Repository) Registry() *identity.Registry {
	return r.registry
}

// Ledger returns the history ledger.
func (r *Repository) Ledger() *history.Ledger {
	return r.ledger
}

// Migration returns the migration pipeline.
func (r *Repository) Migration() *migration.Pipeline {
	return r.pipeline
}

// MigrationDone reports whether every legacy row has been converted.
func (r *Repository) MigrationDone() bool {
	return r.pipeline.Done()
}

// CacheSize returns the configured precache size.
func (r *Repository) CacheSize() int {
	return r.cacheSize
}

// complete reports whether a cache miss is authoritative. Legacy rows that
// have not been converted are invisible to the cache.
func (r *Repository) complete() bool {
	return r.cache.Complete() && r.pipeline.Done()
}

func (r *Repository) legacyPending() bool {
	return r.pipeline.Pending(migration.StageProtections)
}

// MigrationTick runs one migration batch and refreshes the live count when
// protections were converted.
func (r *Repository) MigrationTick(ctx context.Context) (migration.TickResult, error) {
	result, err := r.pipeline.Tick(ctx)
	if result.Stage == migration.StageProtections && result.Handled > 0 {
		r.generation++
		if countErr := r.refreshLiveCount(ctx); countErr != nil {
			r.logf("repository: refresh live count: %v", countErr)
		}
	}
	if err != nil {
		return result, apperrors.Wrap(apperrors.CodeMigrationFailed, "migration tick", err)
	}
	return result, nil
}

func (r *Repository) refreshLiveCount(ctx context.Context) error {
	count, err := r.store.CountProtections(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "count protections", err)
	}
	r.cache.SetLiveCount(count)
	return nil
}

// decode converts a row, logging recovered malformed data.
func (r *Repository) decode(record storage.ProtectionRecord) *domain.Protection {
	p, err := codec.DecodeProtection(record)
	if err != nil {
		r.logf("repository: %v", err)
	}
	return p
}

// adopt returns the cached instance for record's id when one exists, and
// caches the decoded protection otherwise.
func (r *Repository) adopt(record storage.ProtectionRecord) *domain.Protection {
	if cached, ok := r.cache.Get(record.ID); ok {
		return cached
	}
	p := r.decode(record)
	r.cache.Put(p)
	return p
}

func (r *Repository) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// storageError maps a storage failure to a coded error.
func storageError(message string, err error) error {
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperrors.Wrap(apperrors.CodeSchemaConflict, message, err)
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, message, err)
	default:
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, message, err)
	}
}

func idAttr(id int64) attribute.KeyValue {
	return attribute.Int64("protection.id", id)
}

func locationAttr(loc domain.Location) attribute.KeyValue {
	return attribute.String("protection.location", loc.Key())
}
