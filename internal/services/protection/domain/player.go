package domain

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// PlayerInfo is one persisted player identity. UUID is absent for records
// created before stable identities were known. Several identities may share a
// display name over time; UUIDs are unique.
type PlayerInfo struct {
	ID   int64
	UUID uuid.NullUUID
	Name string
}

// HasUUID reports whether the identity carries a stable id.
func (p PlayerInfo) HasUUID() bool {
	return p.UUID.Valid
}

// DisplayName returns the last-known name, falling back to the stable id.
func (p PlayerInfo) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.UUID.Valid {
		return p.UUID.UUID.String()
	}
	return ""
}

// ParseStableID parses value as a UUID, reporting whether it is one. Legacy
// rows may already hold a UUID string in their name column.
func ParseStableID(value string) (uuid.NullUUID, bool) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return uuid.NullUUID{}, false
	}
	return uuid.NullUUID{UUID: parsed, Valid: true}, true
}

// FoldName returns the case-folded lookup key for a display name.
func FoldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
