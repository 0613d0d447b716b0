package domain

import "strings"

// Kind is the access policy of a protection. Values are persisted as
// ordinals, so new kinds must be appended.
type Kind int

const (
	KindPublic Kind = iota
	KindPassword
	KindPrivate
	KindReserved1
	KindReserved2
	KindDonation
	KindDisplay
)

var kindNames = [...]string{
	KindPublic:    "public",
	KindPassword:  "password",
	KindPrivate:   "private",
	KindReserved1: "reserved1",
	KindReserved2: "reserved2",
	KindDonation:  "donation",
	KindDisplay:   "display",
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KindPublic && int(k) < len(kindNames)
}

func (k Kind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind matches a kind by name, ignoring case.
func ParseKind(value string) (Kind, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for i, name := range kindNames {
		if name == value {
			return Kind(i), true
		}
	}
	return 0, false
}
