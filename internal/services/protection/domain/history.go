package domain

import (
	"strings"
	"time"
)

// HistoryType classifies an audit record. Persisted as ordinal.
type HistoryType int

const (
	HistoryTransaction HistoryType = iota
	HistoryRemoval
	HistoryStatusChange
)

func (t HistoryType) String() string {
	switch t {
	case HistoryTransaction:
		return "transaction"
	case HistoryRemoval:
		return "removal"
	case HistoryStatusChange:
		return "status"
	default:
		return "unknown"
	}
}

// HistoryStatus marks whether an audit record is still in effect.
type HistoryStatus int

const (
	HistoryActive HistoryStatus = iota
	HistoryInactive
)

func (s HistoryStatus) String() string {
	if s == HistoryInactive {
		return "inactive"
	}
	return "active"
}

// History is one append-only audit record. ProtectionID is a weak reference:
// it stays valid after the protection is removed.
type History struct {
	ID           int64
	ProtectionID int64
	ActorID      int64
	X            int
	Y            int
	Z            int
	Type         HistoryType
	Status       HistoryStatus
	Metadata     []string
	Timestamp    time.Time
}

// NewHistory snapshots p's location into a record of the given type.
func NewHistory(p *Protection, actorID int64, typ HistoryType) History {
	return History{
		ProtectionID: p.ID,
		ActorID:      actorID,
		X:            p.Location.X,
		Y:            p.Location.Y,
		Z:            p.Location.Z,
		Type:         typ,
		Status:       HistoryActive,
	}
}

// AddMetadata appends a `key=value` entry. Commas separate entries in storage
// and are replaced with spaces.
func (h *History) AddMetadata(key, value string) {
	entry := strings.ReplaceAll(key+"="+value, ",", " ")
	h.Metadata = append(h.Metadata, entry)
}

// MetadataValue returns the value of the first entry for key.
func (h History) MetadataValue(key string) (string, bool) {
	prefix := key + "="
	for _, entry := range h.Metadata {
		if strings.HasPrefix(entry, prefix) {
			return strings.TrimPrefix(entry, prefix), true
		}
	}
	return "", false
}
