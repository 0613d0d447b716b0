package domain

import "testing"

func TestHistoryMetadata(t *testing.T) {
	t.Parallel()

	p := &Protection{ID: 9, Location: Location{World: "w", X: 1, Y: 2, Z: 3}}
	h := NewHistory(p, 4, HistoryTransaction)
	if h.ProtectionID != 9 || h.X != 1 || h.Y != 2 || h.Z != 3 || h.Status != HistoryActive {
		t.Fatalf("snapshot = %+v", h)
	}

	h.AddMetadata("creator", "bob")
	h.AddMetadata("note", "a,b")
	if v, ok := h.MetadataValue("creator"); !ok || v != "bob" {
		t.Fatalf("creator = %q %v", v, ok)
	}
	if v, _ := h.MetadataValue("note"); v != "a b" {
		t.Fatalf("note = %q, want commas stripped", v)
	}
	if _, ok := h.MetadataValue("missing"); ok {
		t.Fatal("unexpected metadata value")
	}
}

func TestParseStableID(t *testing.T) {
	t.Parallel()

	if _, ok := ParseStableID("bob"); ok {
		t.Fatal("name parsed as uuid")
	}
	id, ok := ParseStableID("0f8fad5b-d9cb-469f-a165-70867728950e")
	if !ok || !id.Valid {
		t.Fatal("expected uuid")
	}
	info := PlayerInfo{UUID: id}
	if info.DisplayName() != "0f8fad5b-d9cb-469f-a165-70867728950e" {
		t.Fatalf("display name = %q", info.DisplayName())
	}
}
