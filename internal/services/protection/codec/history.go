package codec

import (
	"strings"

	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

// DecodeHistory builds a history entry from a stored row.
func DecodeHistory(record storage.HistoryRecord) domain.History {
	return domain.History{
		ID:           record.ID,
		ProtectionID: record.ProtectionID,
		ActorID:      record.ActorID,
		X:            record.X,
		Y:            record.Y,
		Z:            record.Z,
		Type:         domain.HistoryType(record.Type),
		Status:       domain.HistoryStatus(record.Status),
		Metadata:     splitMetadata(record.Metadata),
		Timestamp:    record.Timestamp,
	}
}

// EncodeHistory renders h as a row.
func EncodeHistory(h domain.History) storage.HistoryRecord {
	return storage.HistoryRecord{
		ID:           h.ID,
		ProtectionID: h.ProtectionID,
		ActorID:      h.ActorID,
		X:            h.X,
		Y:            h.Y,
		Z:            h.Z,
		Type:         int(h.Type),
		Status:       int(h.Status),
		Metadata:     strings.Join(h.Metadata, ","),
		Timestamp:    h.Timestamp,
	}
}

// HistoryFromLegacy converts a staged legacy history row, keeping its id.
func HistoryFromLegacy(legacy storage.LegacyHistoryRecord, actorID int64) storage.HistoryRecord {
	return storage.HistoryRecord{
		ID:           legacy.ID,
		ProtectionID: legacy.ProtectionID,
		ActorID:      actorID,
		X:            legacy.X,
		Y:            legacy.Y,
		Z:            legacy.Z,
		Type:         legacy.Type,
		Status:       legacy.Status,
		Metadata:     legacy.Metadata,
		Timestamp:    legacy.Timestamp,
	}
}

func splitMetadata(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
