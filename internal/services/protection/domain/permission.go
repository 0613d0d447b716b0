package domain

import "strings"

// Scope is what a permission subject names.
type Scope int

const (
	ScopeGroup Scope = iota
	ScopePlayer
	ScopeTerritory
	ScopeItem
	ScopeRegion
)

func (s Scope) String() string {
	switch s {
	case ScopeGroup:
		return "group"
	case ScopePlayer:
		return "player"
	case ScopeTerritory:
		return "territory"
	case ScopeItem:
		return "item"
	case ScopeRegion:
		return "region"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s >= ScopeGroup && s <= ScopeRegion
}

// Access is the level a permission grants.
type Access int

const (
	AccessNone Access = iota
	AccessPlayer
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessPlayer:
		return "player"
	case AccessAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Permission grants Access to Subject within Scope. Two permissions are the
// same entry when their subject (case-insensitive) and scope match.
type Permission struct {
	Subject string
	Scope   Scope
	Access  Access
}

// SameKey reports whether p and other address the same (subject, scope).
func (p Permission) SameKey(other Permission) bool {
	return p.Scope == other.Scope && strings.EqualFold(p.Subject, other.Subject)
}
