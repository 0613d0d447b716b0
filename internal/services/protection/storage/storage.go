// Package storage defines the persistence contracts behind the protection
// repository, identity registry, history ledger and migration pipeline.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/wardstone/internal/services/protection/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a write collided with a uniqueness constraint.
	ErrAlreadyExists = errors.New("record already exists")
)

// Page bounds a listing query.
type Page struct {
	Offset int
	Limit  int
}

// ProtectionRecord is one protections row joined with its owner identity.
type ProtectionRecord struct {
	ID           int64
	OwnerID      int64
	OwnerUUID    string
	OwnerName    string
	Kind         int
	Location     domain.Location
	BlockID      int
	Password     string
	Data         []byte
	CreatedAt    time.Time
	LastAccessed time.Time
}

// LegacyProtectionRecord is one row of the staged name-keyed protections table.
type LegacyProtectionRecord struct {
	ID           int64
	Owner        string
	Kind         int
	Location     domain.Location
	BlockID      int
	Password     string
	Data         []byte
	CreatedAt    time.Time
	LastAccessed time.Time
}

// PlayerRecord is one players row. UUID is empty when no stable id is known.
// NameKey is the case-folded name used for lookups.
type PlayerRecord struct {
	ID      int64
	UUID    string
	Name    string
	NameKey string
}

// HistoryRecord is one history row.
type HistoryRecord struct {
	ID           int64
	ProtectionID int64
	ActorID      int64
	X            int
	Y            int
	Z            int
	Type         int
	Status       int
	Metadata     string
	Timestamp    time.Time
}

// LegacyHistoryRecord is one row of the staged name-keyed history table.
type LegacyHistoryRecord struct {
	ID           int64
	ProtectionID int64
	Actor        string
	X            int
	Y            int
	Z            int
	Type         int
	Status       int
	Metadata     string
	Timestamp    time.Time
}

// ProtectionStore persists protections.
type ProtectionStore interface {
	// InsertProtection stores a new protection and returns its generated id.
	// A second protection at the same location yields ErrAlreadyExists.
	InsertProtection(ctx context.Context, record ProtectionRecord) (int64, error)
	// UpsertProtection replaces every column of the row with record.ID.
	UpsertProtection(ctx context.Context, record ProtectionRecord) error
	GetProtection(ctx context.Context, id int64) (ProtectionRecord, error)
	GetProtectionAt(ctx context.Context, loc domain.Location) (ProtectionRecord, error)
	ListProtectionsInBounds(ctx context.Context, bounds domain.Bounds) ([]ProtectionRecord, error)
	// ListRecentProtections returns up to limit protections, newest id first.
	ListRecentProtections(ctx context.Context, limit int) ([]ProtectionRecord, error)
	ListProtectionsByOwner(ctx context.Context, ownerID int64, page Page) ([]ProtectionRecord, error)
	ListProtectionsByKind(ctx context.Context, kind int) ([]ProtectionRecord, error)
	ListProtections(ctx context.Context) ([]ProtectionRecord, error)
	DeleteProtection(ctx context.Context, id int64) error
	DeleteProtectionsByOwner(ctx context.Context, ownerID int64) (int64, error)
	DeleteAllProtections(ctx context.Context) (int64, error)
	CountProtections(ctx context.Context) (int64, error)
	CountProtectionsByKind(ctx context.Context, kind int) (int64, error)
	CountProtectionsByOwner(ctx context.Context, ownerID int64) (int64, error)
	CountProtectionsByOwnerAndBlock(ctx context.Context, ownerID int64, blockID int) (int64, error)
}

// LegacyStore reads the staged name-keyed tables left by older schemas.
// Every method treats a missing legacy table as empty.
type LegacyStore interface {
	HasLegacyRows(ctx context.Context) (bool, error)
	GetLegacyProtection(ctx context.Context, id int64) (LegacyProtectionRecord, error)
	GetLegacyProtectionAt(ctx context.Context, loc domain.Location) (LegacyProtectionRecord, error)
	// ListLegacyProtections returns up to limit rows with id > afterID in id order.
	ListLegacyProtections(ctx context.Context, afterID int64, limit int) ([]LegacyProtectionRecord, error)
	DeleteLegacyProtection(ctx context.Context, id int64) error
	// ListLegacyNames returns distinct owner and actor names in name order.
	ListLegacyNames(ctx context.Context, offset, limit int) ([]string, error)
	GetLegacyHistory(ctx context.Context, id int64) (LegacyHistoryRecord, error)
	ListLegacyHistory(ctx context.Context, afterID int64, limit int) ([]LegacyHistoryRecord, error)
}

// PlayerStore persists player identities. Identities are never deleted.
type PlayerStore interface {
	GetPlayer(ctx context.Context, id int64) (PlayerRecord, error)
	GetPlayerByUUID(ctx context.Context, uuid string) (PlayerRecord, error)
	// ListPlayersByNameKey returns every identity whose folded name matches, in id order.
	ListPlayersByNameKey(ctx context.Context, nameKey string) ([]PlayerRecord, error)
	InsertPlayer(ctx context.Context, record PlayerRecord) (int64, error)
	UpdatePlayer(ctx context.Context, record PlayerRecord) error
}

// HistoryStore persists the append-only audit ledger.
type HistoryStore interface {
	InsertHistory(ctx context.Context, record HistoryRecord) (int64, error)
	// UpsertHistory writes a row with an explicit id.
	UpsertHistory(ctx context.Context, record HistoryRecord) error
	GetHistory(ctx context.Context, id int64) (HistoryRecord, error)
	ListHistoryByProtection(ctx context.Context, protectionID int64) ([]HistoryRecord, error)
	ListHistoryByActor(ctx context.Context, actorID int64, page Page) ([]HistoryRecord, error)
	ListHistoryByStatus(ctx context.Context, status int) ([]HistoryRecord, error)
	ListHistoryAt(ctx context.Context, x, y, z int) ([]HistoryRecord, error)
	ListHistoryByActorAt(ctx context.Context, actorID int64, x, y, z int) ([]HistoryRecord, error)
	ListHistory(ctx context.Context, page Page) ([]HistoryRecord, error)
	CountHistory(ctx context.Context) (int64, error)
	CountHistoryByActor(ctx context.Context, actorID int64) (int64, error)
	SetHistoryStatusByActor(ctx context.Context, actorID int64, status int) (int64, error)
	DeleteHistory(ctx context.Context, id int64) error
}

// InternalStore persists key/value bookkeeping such as the schema version and
// the migration checkpoint.
type InternalStore interface {
	GetInternal(ctx context.Context, name string) (string, error)
	// PutInternal writes every pair in one transaction.
	PutInternal(ctx context.Context, values map[string]string) error
}

// Store is the full persistence surface.
type Store interface {
	ProtectionStore
	LegacyStore
	PlayerStore
	HistoryStore
	InternalStore
}
