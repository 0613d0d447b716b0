package codec

import (
	"fmt"

	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

// DecodeProtection builds a protection from a stored row. It always returns
// a protection; a non-nil error reports malformed data that was recovered.
func DecodeProtection(record storage.ProtectionRecord) (*domain.Protection, error) {
	owner := domain.PlayerInfo{ID: record.OwnerID, Name: record.OwnerName}
	if stable, ok := domain.ParseStableID(record.OwnerUUID); ok {
		owner.UUID = stable
	}
	p := &domain.Protection{
		ID:           record.ID,
		Owner:        owner,
		Kind:         domain.Kind(record.Kind),
		Location:     record.Location,
		BlockID:      record.BlockID,
		Password:     record.Password,
		CreatedAt:    record.CreatedAt,
		LastAccessed: record.LastAccessed,
	}
	data, err := DecodeData(record.Data)
	p.SetPermissions(data.Permissions)
	p.SetFlags(data.Flags)
	p.Extension = data.Extension
	p.MarkDecoded()
	if err != nil {
		return p, fmt.Errorf("decode protection %d: %w", record.ID, err)
	}
	return p, nil
}

// EncodeProtection renders p as a row. Malformed data read from storage is
// written back unchanged unless permissions or flags were modified since.
func EncodeProtection(p *domain.Protection) (storage.ProtectionRecord, error) {
	if p == nil {
		return storage.ProtectionRecord{}, fmt.Errorf("protection is required")
	}
	record := storage.ProtectionRecord{
		ID:           p.ID,
		OwnerID:      p.Owner.ID,
		OwnerName:    p.Owner.Name,
		Kind:         int(p.Kind),
		Location:     p.Location,
		BlockID:      p.BlockID,
		Password:     p.Password,
		CreatedAt:    p.CreatedAt,
		LastAccessed: p.LastAccessed,
	}
	if p.Owner.UUID.Valid {
		record.OwnerUUID = p.Owner.UUID.UUID.String()
	}

	if p.Extension.Malformed && !p.SettingsModified() {
		record.Data = append([]byte(nil), p.Extension.Raw...)
		return record, nil
	}
	data, err := EncodeData(Data{
		Permissions: p.Permissions(),
		Flags:       p.Flags(),
		Extension:   p.Extension,
	})
	if err != nil {
		return storage.ProtectionRecord{}, fmt.Errorf("encode protection %d: %w", p.ID, err)
	}
	record.Data = data
	return record, nil
}

// FromLegacy converts a staged legacy row into an identity-keyed row owned by
// owner, keeping the legacy id.
func FromLegacy(legacy storage.LegacyProtectionRecord, owner domain.PlayerInfo) storage.ProtectionRecord {
	record := storage.ProtectionRecord{
		ID:           legacy.ID,
		OwnerID:      owner.ID,
		OwnerName:    owner.Name,
		Kind:         legacy.Kind,
		Location:     legacy.Location,
		BlockID:      legacy.BlockID,
		Password:     legacy.Password,
		Data:         legacy.Data,
		CreatedAt:    legacy.CreatedAt,
		LastAccessed: legacy.LastAccessed,
	}
	if owner.UUID.Valid {
		record.OwnerUUID = owner.UUID.UUID.String()
	}
	return record
}
