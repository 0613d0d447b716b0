// Package history appends and queries the protection audit ledger. Nothing
// here is cached.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/wardstone/internal/services/protection/codec"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/identity"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

// Store is the persistence the ledger needs.
type Store interface {
	storage.HistoryStore
	GetLegacyHistory(ctx context.Context, id int64) (storage.LegacyHistoryRecord, error)
}

// Options configures a Ledger.
type Options struct {
	// Enabled turns Record into a write. Reads work either way.
	Enabled bool
	// Now overrides the clock for record timestamps.
	Now func() time.Time
}

// Ledger is the append-only audit log of protection changes.
type Ledger struct {
	store         Store
	registry      *identity.Registry
	enabled       bool
	now           func() time.Time
	legacyPending func() bool
}

// NewLedger returns a ledger backed by store. The registry converts legacy
// actor names while staged history remains.
func NewLedger(store Store, registry *identity.Registry, opts Options) *Ledger {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:         store,
		registry:      registry,
		enabled:       opts.Enabled,
		now:           now,
		legacyPending: func() bool { return false },
	}
}

// SetLegacyPending installs the check that reports whether staged legacy
// history may still hold unconverted rows.
func (l *Ledger) SetLegacyPending(fn func() bool) {
	if fn == nil {
		fn = func() bool { return false }
	}
	l.legacyPending = fn
}

// Enabled reports whether Record writes.
func (l *Ledger) Enabled() bool {
	return l.enabled
}

// Record appends h and returns it with its id. When the ledger is disabled
// h is returned unchanged.
func (l *Ledger) Record(ctx context.Context, h domain.History) (domain.History, error) {
	if !l.enabled {
		return h, nil
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = l.now().UTC().Truncate(time.Second)
	}
	id, err := l.store.InsertHistory(ctx, codec.EncodeHistory(h))
	if err != nil {
		return h, fmt.Errorf("record history: %w", err)
	}
	h.ID = id
	return h, nil
}

// InvalidateAll marks every entry of actorID inactive.
func (l *Ledger) InvalidateAll(ctx context.Context, actorID int64) (int64, error) {
	n, err := l.store.SetHistoryStatusByActor(ctx, actorID, int(domain.HistoryInactive))
	if err != nil {
		return 0, fmt.Errorf("invalidate history: %w", err)
	}
	return n, nil
}

// Get loads one entry. While legacy history is pending, a miss checks the
// staged table and converts the actor name.
func (l *Ledger) Get(ctx context.Context, id int64) (domain.History, bool, error) {
	record, err := l.store.GetHistory(ctx, id)
	if err == nil {
		return codec.DecodeHistory(record), true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.History{}, false, fmt.Errorf("get history: %w", err)
	}
	if !l.legacyPending() || l.registry == nil {
		return domain.History{}, false, nil
	}

	legacy, err := l.store.GetLegacyHistory(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.History{}, false, nil
		}
		return domain.History{}, false, fmt.Errorf("get legacy history: %w", err)
	}
	actor, err := l.registry.ResolveLegacy(ctx, legacy.Actor)
	if err != nil {
		return domain.History{}, false, fmt.Errorf("resolve legacy actor: %w", err)
	}
	return codec.DecodeHistory(codec.HistoryFromLegacy(legacy, actor.ID)), true, nil
}

// ListByProtection lists one protection's entries, newest first.
func (l *Ledger) ListByProtection(ctx context.Context, protectionID int64) ([]domain.History, error) {
	return decodeAll(l.store.ListHistoryByProtection(ctx, protectionID))
}

// ListByActor lists one actor's entries, newest first.
func (l *Ledger) ListByActor(ctx context.Context, actorID int64, page storage.Page) ([]domain.History, error) {
	return decodeAll(l.store.ListHistoryByActor(ctx, actorID, page))
}

// ListByStatus lists every entry with status, newest first.
func (l *Ledger) ListByStatus(ctx context.Context, status domain.HistoryStatus) ([]domain.History, error) {
	return decodeAll(l.store.ListHistoryByStatus(ctx, int(status)))
}

// ListAt lists entries recorded at one coordinate, newest first.
func (l *Ledger) ListAt(ctx context.Context, x, y, z int) ([]domain.History, error) {
	return decodeAll(l.store.ListHistoryAt(ctx, x, y, z))
}

// ListByActorAt lists one actor's entries at one coordinate, newest first.
func (l *Ledger) ListByActorAt(ctx context.Context, actorID int64, x, y, z int) ([]domain.History, error) {
	return decodeAll(l.store.ListHistoryByActorAt(ctx, actorID, x, y, z))
}

// List lists every entry, newest first.
func (l *Ledger) List(ctx context.Context, page storage.Page) ([]domain.History, error) {
	return decodeAll(l.store.ListHistory(ctx, page))
}

// Count counts every entry.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	n, err := l.store.CountHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// CountByActor counts one actor's entries.
func (l *Ledger) CountByActor(ctx context.Context, actorID int64) (int64, error) {
	n, err := l.store.CountHistoryByActor(ctx, actorID)
	if err != nil {
		return 0, fmt.Errorf("count history by actor: %w", err)
	}
	return n, nil
}

// Remove deletes one entry.
func (l *Ledger) Remove(ctx context.Context, id int64) error {
	if err := l.store.DeleteHistory(ctx, id); err != nil {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func decodeAll(records []storage.HistoryRecord, err error) ([]domain.History, error) {
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]domain.History, 0, len(records))
	for _, record := range records {
		out = append(out, codec.DecodeHistory(record))
	}
	return out, nil
}
