package domain

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Protection binds a location to an owner and an access policy.
//
// Permissions and flags are sets: AddPermission replaces an entry with the
// same (subject, scope) and AddFlag replaces an entry of the same kind.
type Protection struct {
	ID           int64
	Owner        PlayerInfo
	Kind         Kind
	Location     Location
	BlockID      int
	Password     string
	CreatedAt    time.Time
	LastAccessed time.Time
	Extension    Extension

	permissions []Permission
	flags       []Flag
	modified    bool
}

// Permissions returns a copy of the permission set in insertion order.
func (p *Protection) Permissions() []Permission {
	out := make([]Permission, len(p.permissions))
	copy(out, p.permissions)
	return out
}

// AddPermission inserts perm, replacing the access level of an existing
// entry with the same (subject, scope).
func (p *Protection) AddPermission(perm Permission) {
	p.modified = true
	for i := range p.permissions {
		if p.permissions[i].SameKey(perm) {
			p.permissions[i] = perm
			return
		}
	}
	p.permissions = append(p.permissions, perm)
}

// RemovePermissions drops the entry for (subject, scope) and reports whether
// one existed.
func (p *Protection) RemovePermissions(subject string, scope Scope) bool {
	want := Permission{Subject: subject, Scope: scope}
	for i := range p.permissions {
		if p.permissions[i].SameKey(want) {
			p.permissions = append(p.permissions[:i], p.permissions[i+1:]...)
			p.modified = true
			return true
		}
	}
	return false
}

// SetPermissions replaces the whole set; later duplicates win.
func (p *Protection) SetPermissions(perms []Permission) {
	p.permissions = nil
	for _, perm := range perms {
		p.AddPermission(perm)
	}
	p.modified = true
}

// AccessFor returns the access granted to (subject, scope).
func (p *Protection) AccessFor(subject string, scope Scope) Access {
	want := Permission{Subject: subject, Scope: scope}
	for _, perm := range p.permissions {
		if perm.SameKey(want) {
			return perm.Access
		}
	}
	return AccessNone
}

// Flags returns a copy of the flag set.
func (p *Protection) Flags() []Flag {
	out := make([]Flag, len(p.flags))
	copy(out, p.flags)
	return out
}

// AddFlag inserts flag, replacing any flag of the same kind.
func (p *Protection) AddFlag(flag Flag) {
	p.modified = true
	for i := range p.flags {
		if p.flags[i].Kind == flag.Kind {
			p.flags[i] = flag
			return
		}
	}
	p.flags = append(p.flags, flag)
}

// RemoveFlag drops the flag of the given kind.
func (p *Protection) RemoveFlag(kind FlagKind) bool {
	for i := range p.flags {
		if p.flags[i].Kind == kind {
			p.flags = append(p.flags[:i], p.flags[i+1:]...)
			p.modified = true
			return true
		}
	}
	return false
}

// SetFlags replaces the whole flag set; later duplicates win.
func (p *Protection) SetFlags(flags []Flag) {
	p.flags = nil
	for _, flag := range flags {
		p.AddFlag(flag)
	}
	p.modified = true
}

// HasFlag reports whether a flag of kind is set.
func (p *Protection) HasFlag(kind FlagKind) bool {
	for _, flag := range p.flags {
		if flag.Kind == kind {
			return true
		}
	}
	return false
}

// SettingsModified reports whether permissions or flags changed since the
// protection was decoded.
func (p *Protection) SettingsModified() bool {
	return p.modified
}

// MarkDecoded clears the modification marker. The codec calls it after
// populating a freshly decoded protection.
func (p *Protection) MarkDecoded() {
	p.modified = false
}

// SetPassword stores a bcrypt hash of plain.
func (p *Protection) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p.Password = string(hash)
	return nil
}

// CheckPassword reports whether plain matches the stored hash.
func (p *Protection) CheckPassword(plain string) bool {
	if p.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(plain)) == nil
}

// OwnedBy reports whether player is the owner.
func (p *Protection) OwnedBy(player PlayerInfo) bool {
	if p.Owner.ID != 0 && player.ID != 0 {
		return p.Owner.ID == player.ID
	}
	if p.Owner.UUID.Valid && player.UUID.Valid {
		return p.Owner.UUID.UUID == player.UUID.UUID
	}
	return false
}

// CopySettingsFrom applies src's kind, password, permissions and flags to p,
// leaving identity, owner and location untouched.
func (p *Protection) CopySettingsFrom(src *Protection) {
	p.Kind = src.Kind
	p.Password = src.Password
	p.SetPermissions(src.permissions)
	p.SetFlags(src.flags)
}

// Clone returns a deep copy.
func (p *Protection) Clone() *Protection {
	out := *p
	out.permissions = p.Permissions()
	out.flags = make([]Flag, len(p.flags))
	for i, flag := range p.flags {
		out.flags[i] = Flag{Kind: flag.Kind, Data: append([]byte(nil), flag.Data...)}
	}
	out.Extension = p.Extension.Clone()
	return &out
}
