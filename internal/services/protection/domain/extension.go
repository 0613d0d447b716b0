package domain

import "encoding/json"

// Member is one top-level member of the stored data object that this code
// does not interpret.
type Member struct {
	Key   string
	Value json.RawMessage
}

// Extension is the part of a protection's stored data object outside the
// permission and flag lists. Extra keeps unknown members in their original
// order. When the stored bytes could not be parsed, Raw holds them unchanged
// so a later version can retry.
type Extension struct {
	Extra     []Member
	Raw       []byte
	Malformed bool
}

// Get returns the raw value of an unknown member.
func (e Extension) Get(key string) (json.RawMessage, bool) {
	for _, member := range e.Extra {
		if member.Key == key {
			return member.Value, true
		}
	}
	return nil, false
}

// Set replaces or appends an unknown member, keeping order stable.
func (e *Extension) Set(key string, value json.RawMessage) {
	for i := range e.Extra {
		if e.Extra[i].Key == key {
			e.Extra[i].Value = value
			return
		}
	}
	e.Extra = append(e.Extra, Member{Key: key, Value: value})
}

// Delete drops an unknown member.
func (e *Extension) Delete(key string) {
	for i := range e.Extra {
		if e.Extra[i].Key == key {
			e.Extra = append(e.Extra[:i], e.Extra[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy.
func (e Extension) Clone() Extension {
	out := Extension{Malformed: e.Malformed}
	if e.Raw != nil {
		out.Raw = append([]byte(nil), e.Raw...)
	}
	if e.Extra != nil {
		out.Extra = make([]Member, len(e.Extra))
		for i, member := range e.Extra {
			out.Extra[i] = Member{Key: member.Key, Value: append(json.RawMessage(nil), member.Value...)}
		}
	}
	return out
}
