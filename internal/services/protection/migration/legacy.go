package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/wardstone/internal/services/protection/codec"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/identity"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

// Legacy stage names, in pipeline order.
const (
	StagePlayers     = "players"
	StageProtections = "protections"
	StageHistory     = "history"
)

// LegacySource is the storage the legacy stages read from and write to.
type LegacySource interface {
	ListLegacyNames(ctx context.Context, offset, limit int) ([]string, error)
	ListLegacyProtections(ctx context.Context, afterID int64, limit int) ([]storage.LegacyProtectionRecord, error)
	ListLegacyHistory(ctx context.Context, afterID int64, limit int) ([]storage.LegacyHistoryRecord, error)
	UpsertProtection(ctx context.Context, record storage.ProtectionRecord) error
	UpsertHistory(ctx context.Context, record storage.HistoryRecord) error
}

// LegacyStages builds the players, protections and history stages. Names are
// resolved through registry so every stage maps a legacy name to the same
// identity.
func LegacyStages(source LegacySource, registry *identity.Registry, logf func(string, ...any)) []Stage {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	names := &nameMemo{registry: registry, known: make(map[string]domain.PlayerInfo)}

	players := NewStage(StagePlayers,
		func(ctx context.Context, offset int64, limit int) ([]Row[string], error) {
			values, err := source.ListLegacyNames(ctx, int(offset), limit)
			if err != nil {
				return nil, err
			}
			rows := make([]Row[string], 0, len(values))
			for i, value := range values {
				rows = append(rows, Row[string]{Value: value, Offset: offset + int64(i) + 1})
			}
			return rows, nil
		},
		Handler[string]{
			Start: func(context.Context) error {
				logf("migration: converting legacy player names")
				return nil
			},
			Row: func(ctx context.Context, name string) error {
				_, err := names.resolve(ctx, name)
				return err
			},
		},
	)

	protections := NewStage(StageProtections,
		func(ctx context.Context, offset int64, limit int) ([]Row[storage.LegacyProtectionRecord], error) {
			records, err := source.ListLegacyProtections(ctx, offset, limit)
			if err != nil {
				return nil, err
			}
			rows := make([]Row[storage.LegacyProtectionRecord], 0, len(records))
			for _, record := range records {
				rows = append(rows, Row[storage.LegacyProtectionRecord]{Value: record, Offset: record.ID})
			}
			return rows, nil
		},
		Handler[storage.LegacyProtectionRecord]{
			Start: func(context.Context) error {
				logf("migration: converting legacy protections")
				return nil
			},
			Row: func(ctx context.Context, record storage.LegacyProtectionRecord) error {
				owner, err := names.resolve(ctx, record.Owner)
				if err != nil {
					return err
				}
				if err := source.UpsertProtection(ctx, codec.FromLegacy(record, owner)); err != nil {
					if errors.Is(err, storage.ErrAlreadyExists) {
						return fmt.Errorf("protection %d: location %s already protected", record.ID, record.Location)
					}
					return fmt.Errorf("protection %d: %w", record.ID, err)
				}
				return nil
			},
		},
	)

	history := NewStage(StageHistory,
		func(ctx context.Context, offset int64, limit int) ([]Row[storage.LegacyHistoryRecord], error) {
			records, err := source.ListLegacyHistory(ctx, offset, limit)
			if err != nil {
				return nil, err
			}
			rows := make([]Row[storage.LegacyHistoryRecord], 0, len(records))
			for _, record := range records {
				rows = append(rows, Row[storage.LegacyHistoryRecord]{Value: record, Offset: record.ID})
			}
			return rows, nil
		},
		Handler[storage.LegacyHistoryRecord]{
			Start: func(context.Context) error {
				logf("migration: converting legacy history")
				return nil
			},
			Row: func(ctx context.Context, record storage.LegacyHistoryRecord) error {
				actor, err := names.resolve(ctx, record.Actor)
				if err != nil {
					return err
				}
				if err := source.UpsertHistory(ctx, codec.HistoryFromLegacy(record, actor.ID)); err != nil {
					return fmt.Errorf("history %d: %w", record.ID, err)
				}
				return nil
			},
			Complete: func(context.Context) error {
				names.reset()
				return nil
			},
		},
	)

	return []Stage{players, protections, history}
}

// nameMemo remembers resolved legacy names for the life of one migration.
type nameMemo struct {
	registry *identity.Registry
	known    map[string]domain.PlayerInfo
}

func (m *nameMemo) resolve(ctx context.Context, name string) (domain.PlayerInfo, error) {
	if info, ok := m.known[name]; ok {
		return info, nil
	}
	info, err := m.registry.ResolveLegacy(ctx, name)
	if err != nil {
		return domain.PlayerInfo{}, fmt.Errorf("resolve legacy name %q: %w", name, err)
	}
	m.known[name] = info
	return info, nil
}

func (m *nameMemo) reset() {
	clear(m.known)
}
