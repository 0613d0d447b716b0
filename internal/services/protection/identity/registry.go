// Package identity maps display names and stable ids to persisted player
// identities. Identities are never deleted.
package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

// Resolver looks up the stable id a host knows for a display name. It
// reports an invalid NullUUID when the name is unknown.
type Resolver interface {
	ResolveStableID(ctx context.Context, name string) (uuid.NullUUID, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) (uuid.NullUUID, error)

// ResolveStableID calls f.
func (f ResolverFunc) ResolveStableID(ctx context.Context, name string) (uuid.NullUUID, error) {
	return f(ctx, name)
}

// Registry resolves and creates player identities. Resolved identities are
// kept in memory over the persisted records; every write goes through the
// registry so the memory never disagrees with the store.
type Registry struct {
	store    storage.PlayerStore
	resolver Resolver

	mu     sync.Mutex
	byID   map[int64]domain.PlayerInfo
	byUUID map[uuid.UUID]int64
	// byName holds the full id list for a folded name once it was listed.
	byName map[string][]int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithResolver attaches host-known stable ids to legacy names.
func WithResolver(resolver Resolver) Option {
	return func(r *Registry) {
		r.resolver = resolver
	}
}

// NewRegistry returns a registry backed by store.
func NewRegistry(store storage.PlayerStore, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		byID:   make(map[int64]domain.PlayerInfo),
		byUUID: make(map[uuid.UUID]int64),
		byName: make(map[string][]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FoldName returns the case-folded lookup key for a display name.
func FoldName(name string) string {
	return domain.FoldName(name)
}

// ResolveName returns every identity known under name, ignoring case, in id
// order.
func (r *Registry) ResolveName(ctx context.Context, name string) ([]domain.PlayerInfo, error) {
	key := FoldName(name)
	if infos, ok := r.cachedName(key); ok {
		return infos, nil
	}
	records, err := r.store.ListPlayersByNameKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve player name: %w", err)
	}
	infos := make([]domain.PlayerInfo, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, record := range records {
		info := toInfo(record)
		infos = append(infos, info)
		ids = append(ids, info.ID)
	}

	r.mu.Lock()
	for _, info := range infos {
		r.remember(info)
	}
	r.byName[key] = ids
	r.mu.Unlock()
	return infos, nil
}

// ResolveUUID returns the identity holding id.
func (r *Registry) ResolveUUID(ctx context.Context, id uuid.UUID) (domain.PlayerInfo, bool, error) {
	r.mu.Lock()
	if playerID, ok := r.byUUID[id]; ok {
		info := r.byID[playerID]
		r.mu.Unlock()
		return info, true, nil
	}
	r.mu.Unlock()

	record, err := r.store.GetPlayerByUUID(ctx, id.String())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.PlayerInfo{}, false, nil
		}
		return domain.PlayerInfo{}, false, fmt.Errorf("resolve player uuid: %w", err)
	}
	return r.rememberRecord(record), true, nil
}

// Get returns the identity with id.
func (r *Registry) Get(ctx context.Context, id int64) (domain.PlayerInfo, bool, error) {
	r.mu.Lock()
	info, ok := r.byID[id]
	r.mu.Unlock()
	if ok {
		return info, true, nil
	}

	record, err := r.store.GetPlayer(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.PlayerInfo{}, false, nil
		}
		return domain.PlayerInfo{}, false, fmt.Errorf("get player: %w", err)
	}
	return r.rememberRecord(record), true, nil
}

// GetOrCreate returns the identity for stable, or for name when stable is
// absent, creating it when missing. Without a stable id an existing identity
// that also lacks one is preferred, so repeated calls for a legacy name
// return the same identity.
func (r *Registry) GetOrCreate(ctx context.Context, stable uuid.NullUUID, name string) (domain.PlayerInfo, error) {
	name = strings.TrimSpace(name)
	if stable.Valid {
		info, ok, err := r.ResolveUUID(ctx, stable.UUID)
		if err != nil {
			return domain.PlayerInfo{}, err
		}
		if ok {
			return info, nil
		}
	} else {
		if name == "" {
			return domain.PlayerInfo{}, fmt.Errorf("player name or uuid is required")
		}
		found, err := r.ResolveName(ctx, name)
		if err != nil {
			return domain.PlayerInfo{}, err
		}
		for _, info := range found {
			if !info.HasUUID() {
				return info, nil
			}
		}
	}

	record := storage.PlayerRecord{Name: name, NameKey: FoldName(name)}
	if stable.Valid {
		record.UUID = stable.UUID.String()
	}
	id, err := r.store.InsertPlayer(ctx, record)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) && stable.Valid {
			info, ok, lookupErr := r.ResolveUUID(ctx, stable.UUID)
			if lookupErr == nil && ok {
				return info, nil
			}
		}
		return domain.PlayerInfo{}, fmt.Errorf("create player: %w", err)
	}
	info := domain.PlayerInfo{ID: id, UUID: stable, Name: name}

	r.mu.Lock()
	r.remember(info)
	if ids, ok := r.byName[record.NameKey]; ok {
		r.byName[record.NameKey] = insertID(ids, id)
	}
	r.mu.Unlock()
	return info, nil
}

// ResolveLegacy returns the identity for a value read from a name-keyed
// legacy row. Values that are already stable ids are used as such; other
// names are offered to the configured Resolver before falling back to a
// name-only identity. Every legacy conversion goes through here so one name
// always maps to one identity.
func (r *Registry) ResolveLegacy(ctx context.Context, value string) (domain.PlayerInfo, error) {
	value = strings.TrimSpace(value)
	if stable, ok := domain.ParseStableID(value); ok {
		return r.GetOrCreate(ctx, stable, "")
	}
	if r.resolver != nil {
		stable, err := r.resolver.ResolveStableID(ctx, value)
		if err != nil {
			return domain.PlayerInfo{}, fmt.Errorf("resolve stable id for %q: %w", value, err)
		}
		if stable.Valid {
			return r.GetOrCreate(ctx, stable, value)
		}
	}
	return r.GetOrCreate(ctx, uuid.NullUUID{}, value)
}

// Rename stores info's uuid and last-known name.
func (r *Registry) Rename(ctx context.Context, info domain.PlayerInfo) error {
	if info.ID <= 0 {
		return fmt.Errorf("player id is required")
	}
	record := storage.PlayerRecord{ID: info.ID, Name: info.Name, NameKey: FoldName(info.Name)}
	if info.UUID.Valid {
		record.UUID = info.UUID.UUID.String()
	}
	if err := r.store.UpdatePlayer(ctx, record); err != nil {
		return fmt.Errorf("rename player: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[info.ID]; ok {
		if old.UUID.Valid && r.byUUID[old.UUID.UUID] == info.ID {
			delete(r.byUUID, old.UUID.UUID)
		}
		oldKey := FoldName(old.Name)
		if oldKey != record.NameKey {
			if ids, ok := r.byName[oldKey]; ok {
				r.byName[oldKey] = slices.DeleteFunc(slices.Clone(ids), func(id int64) bool { return id == info.ID })
			}
		}
	} else {
		// The previous name is unknown, so no listed name can be trusted.
		clear(r.byName)
	}
	r.remember(info)
	if ids, ok := r.byName[record.NameKey]; ok {
		r.byName[record.NameKey] = insertID(ids, info.ID)
	}
	return nil
}

func (r *Registry) cachedName(key string) ([]domain.PlayerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.byName[key]
	if !ok {
		return nil, false
	}
	infos := make([]domain.PlayerInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, r.byID[id])
	}
	return infos, true
}

func (r *Registry) rememberRecord(record storage.PlayerRecord) domain.PlayerInfo {
	info := toInfo(record)
	r.mu.Lock()
	r.remember(info)
	r.mu.Unlock()
	return info
}

// remember must be called with mu held.
func (r *Registry) remember(info domain.PlayerInfo) {
	r.byID[info.ID] = info
	if info.UUID.Valid {
		r.byUUID[info.UUID.UUID] = info.ID
	}
}

// insertID adds id to the sorted ids, returning a new slice.
func insertID(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(slices.Clone(ids), i, id)
}

func toInfo(record storage.PlayerRecord) domain.PlayerInfo {
	info := domain.PlayerInfo{ID: record.ID, Name: record.Name}
	if stable, ok := domain.ParseStableID(record.UUID); ok {
		info.UUID = stable
	}
	return info
}
