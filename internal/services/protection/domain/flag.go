package domain

import "encoding/json"

// FlagKind identifies a behaviour toggle on a protection. Persisted as ordinal.
type FlagKind int

const (
	FlagRedstone FlagKind = iota
	FlagMagnet
	FlagExemption
	FlagAutoClose
	FlagAllowExplosions
	FlagHopper
)

func (k FlagKind) String() string {
	switch k {
	case FlagRedstone:
		return "redstone"
	case FlagMagnet:
		return "magnet"
	case FlagExemption:
		return "exemption"
	case FlagAutoClose:
		return "autoclose"
	case FlagAllowExplosions:
		return "allowexplosions"
	case FlagHopper:
		return "hopper"
	default:
		return "unknown"
	}
}

// Flag is a set member keyed by Kind. Data is the flag's opaque JSON array
// payload, kept verbatim.
type Flag struct {
	Kind FlagKind
	Data json.RawMessage
}
