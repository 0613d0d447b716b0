package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/wardstone/internal/platform/errors"
	"github.com/louisbranch/wardstone/internal/services/protection/codec"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
	"go.opentelemetry.io/otel/trace"
)

// RegisterRequest describes a new protection.
type RegisterRequest struct {
	Kind      domain.Kind
	Location  domain.Location
	BlockID   int
	OwnerName string
	OwnerUUID uuid.NullUUID
	// Password is stored as given; see domain.Protection.SetPassword.
	Password string
	Data     codec.Data
}

func (req RegisterRequest) validate() error {
	if !req.Kind.Valid() {
		return apperrors.New(apperrors.CodeInvalidArgument, "protection kind is invalid")
	}
	if strings.TrimSpace(req.Location.World) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "world is required")
	}
	if strings.TrimSpace(req.OwnerName) == "" && !req.OwnerUUID.Valid {
		return apperrors.New(apperrors.CodeInvalidArgument, "owner name or uuid is required")
	}
	return nil
}

// Register stores a new protection, caches it and records its creation in
// the ledger. Nothing is cached when storage rejects the protection.
func (r *Repository) Register(ctx context.Context, req RegisterRequest) (*domain.Protection, error) {
	ctx, span := r.tracer.Start(ctx, "repository.Register", trace.WithAttributes(locationAttr(req.Location)))
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, r.fail(span, err)
	}
	owner, err := r.registry.GetOrCreate(ctx, req.OwnerUUID, req.OwnerName)
	if err != nil {
		return nil, r.fail(span, apperrors.Wrap(apperrors.CodeStorageUnavailable, "resolve protection owner", err))
	}
	data, err := codec.EncodeData(req.Data)
	if err != nil {
		return nil, r.fail(span, apperrors.Wrap(apperrors.CodeInvalidArgument, "encode protection data", err))
	}

	now := r.now().UTC()
	id, err := r.store.InsertProtection(ctx, storage.ProtectionRecord{
		OwnerID:      owner.ID,
		Kind:         int(req.Kind),
		Location:     req.Location,
		BlockID:      req.BlockID,
		Password:     req.Password,
		Data:         data,
		CreatedAt:    now,
		LastAccessed: now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, r.fail(span, apperrors.WrapWithMetadata(apperrors.CodeSchemaConflict,
				"location is already protected", map[string]string{"location": req.Location.Key()}, err))
		}
		return nil, r.fail(span, storageError("register protection", err))
	}
	span.SetAttributes(idAttr(id))
	r.generation++
	r.cache.AdjustLiveCount(1)

	// Reload for the stored timestamps and owner columns.
	record, err := r.store.GetProtection(ctx, id)
	if err != nil {
		return nil, r.fail(span, storageError("reload registered protection", err))
	}
	p := r.decode(record)
	r.cache.Put(p)

	h := domain.NewHistory(p, owner.ID, domain.HistoryTransaction)
	h.AddMetadata("creator", owner.DisplayName())
	if _, err := r.ledger.Record(ctx, h); err != nil {
		r.logf("repository: %v", err)
	}
	return p, nil
}

// Save writes every column of p. The cache is left alone; call Recache when
// the cached instance must reflect a moved or replaced protection.
func (r *Repository) Save(ctx context.Context, p *domain.Protection) error {
	if p == nil || p.ID <= 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "protection id is required")
	}
	ctx, span := r.tracer.Start(ctx, "repository.Save", trace.WithAttributes(idAttr(p.ID)))
	defer span.End()

	record, err := codec.EncodeProtection(p)
	if err != nil {
		return r.fail(span, apperrors.Wrap(apperrors.CodeMalformedExtensionData, "encode protection", err))
	}
	if err := r.store.UpsertProtection(ctx, record); err != nil {
		return r.fail(span, storageError("save protection", err))
	}
	r.generation++
	return nil
}

// Recache drops whatever the cache holds for p and stores p in its place.
func (r *Repository) Recache(p *domain.Protection) {
	if p == nil {
		return
	}
	r.cache.Invalidate(p)
	r.cache.Put(p)
}

// Remove deletes one protection. Its history is kept. While the migration
// has not converted protections, the staged legacy row is deleted too.
func (r *Repository) Remove(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "repository.Remove", trace.WithAttributes(idAttr(id)))
	defer span.End()

	legacyRemoved := false
	if r.legacyPending() {
		_, err := r.store.GetLegacyProtection(ctx, id)
		switch {
		case err == nil:
			if err := r.store.DeleteLegacyProtection(ctx, id); err != nil {
				return r.fail(span, storageError("remove legacy protection", err))
			}
			legacyRemoved = true
		case !errors.Is(err, storage.ErrNotFound):
			return r.fail(span, storageError("remove legacy protection", err))
		}
	}

	err := r.store.DeleteProtection(ctx, id)
	switch {
	case err == nil:
		r.cache.AdjustLiveCount(-1)
	case errors.Is(err, storage.ErrNotFound) && legacyRemoved:
	default:
		return r.fail(span, storageError("remove protection", err))
	}
	r.generation++
	r.cache.InvalidateID(id)
	return nil
}

// RemoveByOwner deletes every protection of ownerID and returns how many
// were removed.
func (r *Repository) RemoveByOwner(ctx context.Context, ownerID int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "repository.RemoveByOwner")
	defer span.End()

	n, err := r.store.DeleteProtectionsByOwner(ctx, ownerID)
	if err != nil {
		return 0, r.fail(span, storageError("remove protections by owner", err))
	}
	var stale []int64
	r.cache.Each(func(p *domain.Protection) bool {
		if p.Owner.ID == ownerID {
			stale = append(stale, p.ID)
		}
		return true
	})
	for _, id := range stale {
		r.cache.InvalidateID(id)
	}
	r.generation++
	r.cache.AdjustLiveCount(-n)
	return n, nil
}

// RemoveAll deletes every converted protection and empties the cache.
func (r *Repository) RemoveAll(ctx context.Context) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "repository.RemoveAll")
	defer span.End()

	n, err := r.store.DeleteAllProtections(ctx)
	if err != nil {
		return 0, r.fail(span, storageError("remove protections", err))
	}
	r.generation++
	r.cache.Clear()
	r.cache.SetLiveCount(0)
	return n, nil
}
