package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestUpgradeFreshDatabase(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != LatestVersion {
		t.Fatalf("version = %d, want %d", version, LatestVersion)
	}
	again, err := store.Upgrade(ctx)
	if err != nil {
		t.Fatalf("second upgrade: %v", err)
	}
	if again != LatestVersion {
		t.Fatalf("second upgrade version = %d", again)
	}
	legacy, err := store.HasLegacyRows(ctx)
	if err != nil {
		t.Fatalf("has legacy rows: %v", err)
	}
	if legacy {
		t.Fatal("fresh database reports legacy rows")
	}
	for _, index := range []string{"protections_location", "protections_type", "player_uuid", "player_name_key", "history_utility2", "internal_main"} {
		if !indexExists(t, store.sqlDB, index) {
			t.Fatalf("expected index %s", index)
		}
	}
}

func TestInsertAndLoadProtection(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ownerID, err := store.InsertPlayer(ctx, storage.PlayerRecord{UUID: "0F8FAD5B-D9CB-469F-A165-70867728950E", Name: "Bob", NameKey: "bob"})
	if err != nil {
		t.Fatalf("insert player: %v", err)
	}
	loc := domain.Location{World: "world", X: 10, Y: 64, Z: -5}
	id, err := store.InsertProtection(ctx, storage.ProtectionRecord{
		OwnerID:      ownerID,
		Kind:         int(domain.KindPrivate),
		Location:     loc,
		BlockID:      54,
		Data:         []byte(`{"rights":[]}`),
		CreatedAt:    now,
		LastAccessed: now,
	})
	if err != nil {
		t.Fatalf("insert protection: %v", err)
	}

	byID, err := store.GetProtection(ctx, id)
	if err != nil {
		t.Fatalf("get protection: %v", err)
	}
	byLoc, err := store.GetProtectionAt(ctx, loc)
	if err != nil {
		t.Fatalf("get protection at: %v", err)
	}
	if byID.ID != byLoc.ID || byID.Location != loc {
		t.Fatalf("loads differ: %+v vs %+v", byID, byLoc)
	}
	if byID.OwnerName != "Bob" || byID.OwnerUUID != "0f8fad5b-d9cb-469f-a165-70867728950e" {
		t.Fatalf("owner join = %q %q", byID.OwnerName, byID.OwnerUUID)
	}
	if !byID.CreatedAt.Equal(now) || !byID.LastAccessed.Equal(now) {
		t.Fatalf("timestamps = %v %v", byID.CreatedAt, byID.LastAccessed)
	}
	if string(byID.Data) != `{"rights":[]}` {
		t.Fatalf("data = %s", byID.Data)
	}

	_, err = store.InsertProtection(ctx, storage.ProtectionRecord{OwnerID: ownerID, Location: loc})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate insert err = %v, want ErrAlreadyExists", err)
	}
	if _, err := store.GetProtection(ctx, id+100); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing protection err = %v", err)
	}
}

func TestUpsertProtectionReplacesRow(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	record := storage.ProtectionRecord{ID: 42, OwnerID: 1, Location: domain.Location{World: "w", X: 1}}
	if err := store.UpsertProtection(ctx, record); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	record.Kind = int(domain.KindPassword)
	record.Password = "hash"
	record.Data = nil
	if err := store.UpsertProtection(ctx, record); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := store.GetProtection(ctx, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Kind != int(domain.KindPassword) || got.Password != "hash" || got.Data != nil {
		t.Fatalf("upsert did not replace: %+v", got)
	}

	clash := storage.ProtectionRecord{ID: 43, OwnerID: 1, Location: record.Location}
	if err := store.UpsertProtection(ctx, clash); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("clash err = %v, want ErrAlreadyExists", err)
	}
}

func TestListAndCountProtections(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	inputs := []storage.ProtectionRecord{
		{OwnerID: 1, Kind: 0, BlockID: 54, Location: domain.Location{World: "w", X: 0, Y: 0, Z: 0}},
		{OwnerID: 1, Kind: 2, BlockID: 54, Location: domain.Location{World: "w", X: 5, Y: 0, Z: 5}},
		{OwnerID: 2, Kind: 2, BlockID: 61, Location: domain.Location{World: "w", X: 6, Y: 0, Z: 0}},
		{OwnerID: 2, Kind: 2, BlockID: 54, Location: domain.Location{World: "other", X: 1, Y: 0, Z: 1}},
	}
	var ids []int64
	for _, input := range inputs {
		id, err := store.InsertProtection(ctx, input)
		if err != nil {
			t.Fatalf("insert %+v: %v", input.Location, err)
		}
		ids = append(ids, id)
	}

	inBounds, err := store.ListProtectionsInBounds(ctx, domain.Bounds{World: "w", MinX: 5, MaxX: 0, MinY: 0, MaxY: 0, MinZ: 0, MaxZ: 5})
	if err != nil {
		t.Fatalf("list in bounds: %v", err)
	}
	if len(inBounds) != 2 || inBounds[0].ID != ids[0] || inBounds[1].ID != ids[1] {
		t.Fatalf("in bounds = %+v", inBounds)
	}

	recent, err := store.ListRecentProtections(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != ids[3] || recent[1].ID != ids[2] {
		t.Fatalf("recent = %+v", recent)
	}

	byOwner, err := store.ListProtectionsByOwner(ctx, 2, storage.Page{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(byOwner) != 1 || byOwner[0].ID != ids[3] {
		t.Fatalf("by owner page = %+v", byOwner)
	}

	byKind, err := store.ListProtectionsByKind(ctx, 2)
	if err != nil {
		t.Fatalf("list by kind: %v", err)
	}
	if len(byKind) != 3 {
		t.Fatalf("by kind = %d, want 3", len(byKind))
	}

	counts := []struct {
		name string
		fn   func() (int64, error)
		want int64
	}{
		{"total", func() (int64, error) { return store.CountProtections(ctx) }, 4},
		{"kind", func() (int64, error) { return store.CountProtectionsByKind(ctx, 2) }, 3},
		{"owner", func() (int64, error) { return store.CountProtectionsByOwner(ctx, 1) }, 2},
		{"owner block", func() (int64, error) { return store.CountProtectionsByOwnerAndBlock(ctx, 2, 54) }, 1},
	}
	for _, tc := range counts {
		got, err := tc.fn()
		if err != nil {
			t.Fatalf("count %s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("count %s = %d, want %d", tc.name, got, tc.want)
		}
	}

	removed, err := store.DeleteProtectionsByOwner(ctx, 2)
	if err != nil {
		t.Fatalf("delete by owner: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if err := store.DeleteProtection(ctx, ids[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteProtection(ctx, ids[0]); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := store.DeleteAllProtections(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	all, err := store.ListProtections(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("remaining = %d", len(all))
	}
}

func TestPlayers(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	first, err := store.InsertPlayer(ctx, storage.PlayerRecord{Name: "Bob", NameKey: "bob"})
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second, err := store.InsertPlayer(ctx, storage.PlayerRecord{UUID: "0f8fad5b-d9cb-469f-a165-70867728950e", Name: "BOB", NameKey: "bob"})
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if _, err := store.InsertPlayer(ctx, storage.PlayerRecord{UUID: "0f8fad5b-d9cb-469f-a165-70867728950e", Name: "x"}); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate uuid err = %v", err)
	}

	matches, err := store.ListPlayersByNameKey(ctx, "bob")
	if err != nil {
		t.Fatalf("list by name: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != first || matches[1].ID != second {
		t.Fatalf("matches = %+v", matches)
	}

	byUUID, err := store.GetPlayerByUUID(ctx, "0F8FAD5B-D9CB-469F-A165-70867728950E")
	if err != nil {
		t.Fatalf("get by uuid: %v", err)
	}
	if byUUID.ID != second {
		t.Fatalf("by uuid = %+v", byUUID)
	}

	if err := store.UpdatePlayer(ctx, storage.PlayerRecord{ID: first, Name: "Robert", NameKey: "robert"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetPlayer(ctx, first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Robert" || got.UUID != "" {
		t.Fatalf("updated = %+v", got)
	}
	if err := store.UpdatePlayer(ctx, storage.PlayerRecord{ID: 999}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing err = %v", err)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inputs := []storage.HistoryRecord{
		{ProtectionID: 1, ActorID: 7, X: 1, Y: 2, Z: 3, Metadata: "creator=bob", Timestamp: now},
		{ProtectionID: 1, ActorID: 8, X: 1, Y: 2, Z: 3, Type: 1},
		{ProtectionID: 2, ActorID: 7, X: 4, Y: 5, Z: 6},
	}
	var ids []int64
	for _, input := range inputs {
		id, err := store.InsertHistory(ctx, input)
		if err != nil {
			t.Fatalf("insert history: %v", err)
		}
		ids = append(ids, id)
	}

	got, err := store.GetHistory(ctx, ids[0])
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if got.Metadata != "creator=bob" || !got.Timestamp.Equal(now) {
		t.Fatalf("history = %+v", got)
	}

	byProtection, err := store.ListHistoryByProtection(ctx, 1)
	if err != nil || len(byProtection) != 2 || byProtection[0].ID != ids[1] {
		t.Fatalf("by protection = %+v, %v", byProtection, err)
	}
	byActor, err := store.ListHistoryByActor(ctx, 7, storage.Page{Limit: 1})
	if err != nil || len(byActor) != 1 || byActor[0].ID != ids[2] {
		t.Fatalf("by actor = %+v, %v", byActor, err)
	}
	at, err := store.ListHistoryAt(ctx, 1, 2, 3)
	if err != nil || len(at) != 2 {
		t.Fatalf("at = %+v, %v", at, err)
	}
	actorAt, err := store.ListHistoryByActorAt(ctx, 8, 1, 2, 3)
	if err != nil || len(actorAt) != 1 {
		t.Fatalf("actor at = %+v, %v", actorAt, err)
	}

	changed, err := store.SetHistoryStatusByActor(ctx, 7, 1)
	if err != nil || changed != 2 {
		t.Fatalf("set status = %d, %v", changed, err)
	}
	inactive, err := store.ListHistoryByStatus(ctx, 1)
	if err != nil || len(inactive) != 2 {
		t.Fatalf("inactive = %+v, %v", inactive, err)
	}

	if err := store.UpsertHistory(ctx, storage.HistoryRecord{ID: 100, ProtectionID: 9, ActorID: 7}); err != nil {
		t.Fatalf("upsert history: %v", err)
	}
	count, err := store.CountHistoryByActor(ctx, 7)
	if err != nil || count != 3 {
		t.Fatalf("count by actor = %d, %v", count, err)
	}
	if err := store.DeleteHistory(ctx, 100); err != nil {
		t.Fatalf("delete history: %v", err)
	}
	total, err := store.CountHistory(ctx)
	if err != nil || total != 3 {
		t.Fatalf("count = %d, %v", total, err)
	}
	page, err := store.ListHistory(ctx, storage.Page{Offset: 1, Limit: 5})
	if err != nil || len(page) != 2 {
		t.Fatalf("page = %+v, %v", page, err)
	}
}

func TestInternalValues(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.GetInternal(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if err := store.PutInternal(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.PutInternal(ctx, map[string]string{"a": "3"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	for name, want := range map[string]string{"a": "3", "b": "2"} {
		got, err := store.GetInternal(ctx, name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestUpgradeStagesLegacyTables(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacyDatabase(t, path)

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open legacy store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	version, err := store.Upgrade(ctx)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if version != LatestVersion {
		t.Fatalf("version = %d", version)
	}
	if indexExists(t, store.sqlDB, "in1") {
		t.Fatal("legacy index survived")
	}

	legacy, err := store.HasLegacyRows(ctx)
	if err != nil || !legacy {
		t.Fatalf("has legacy rows = %v, %v", legacy, err)
	}
	count, err := store.CountProtections(ctx)
	if err != nil || count != 0 {
		t.Fatalf("new protections = %d, %v", count, err)
	}

	rows, err := store.ListLegacyProtections(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list legacy: %v", err)
	}
	if len(rows) != 2 || rows[0].Owner != "alice" || rows[1].ID != 20 {
		t.Fatalf("legacy rows = %+v", rows)
	}
	if rows[0].CreatedAt.IsZero() {
		t.Fatal("expected legacy date parsed")
	}
	next, err := store.ListLegacyProtections(ctx, 10, 10)
	if err != nil || len(next) != 1 {
		t.Fatalf("keyset page = %+v, %v", next, err)
	}

	at, err := store.GetLegacyProtectionAt(ctx, domain.Location{World: "world", X: 2, Y: 2, Z: 2})
	if err != nil || at.ID != 20 {
		t.Fatalf("legacy at = %+v, %v", at, err)
	}

	names, err := store.ListLegacyNames(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list names: %v", err)
	}
	if len(names) != 3 || names[0] != "alice" || names[1] != "bob" || names[2] != "carol" {
		t.Fatalf("names = %v", names)
	}
	tail, err := store.ListLegacyNames(ctx, 2, 10)
	if err != nil || len(tail) != 1 {
		t.Fatalf("names tail = %v, %v", tail, err)
	}

	history, err := store.ListLegacyHistory(ctx, 0, 10)
	if err != nil || len(history) != 1 || history[0].Actor != "carol" {
		t.Fatalf("legacy history = %+v, %v", history, err)
	}
	if _, err := store.GetLegacyHistory(ctx, history[0].ID); err != nil {
		t.Fatalf("get legacy history: %v", err)
	}

	id, err := store.InsertProtection(ctx, storage.ProtectionRecord{OwnerID: 1, Location: domain.Location{World: "world", X: 9}})
	if err != nil {
		t.Fatalf("insert after staging: %v", err)
	}
	if id <= 20 {
		t.Fatalf("new id %d collides with legacy ids", id)
	}

	if err := store.DeleteLegacyProtection(ctx, 10); err != nil {
		t.Fatalf("delete legacy: %v", err)
	}
	if _, err := store.GetLegacyProtection(ctx, 10); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted legacy err = %v", err)
	}
}

func TestLegacyReadsWithoutLegacyTables(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.GetLegacyProtection(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get legacy err = %v", err)
	}
	rows, err := store.ListLegacyProtections(ctx, 0, 10)
	if err != nil || len(rows) != 0 {
		t.Fatalf("list legacy = %+v, %v", rows, err)
	}
	names, err := store.ListLegacyNames(ctx, 0, 10)
	if err != nil || len(names) != 0 {
		t.Fatalf("names = %v, %v", names, err)
	}
	if err := store.DeleteLegacyProtection(ctx, 1); err != nil {
		t.Fatalf("delete legacy: %v", err)
	}
}

func TestUniqueLocationFallsBackOnDuplicates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dupes.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	mustExec(t, db,
		"CREATE TABLE protections (id INTEGER PRIMARY KEY, owner INTEGER, type INTEGER, x INTEGER, y INTEGER, z INTEGER, data TEXT, blockId INTEGER, world VARCHAR(255), password VARCHAR(255), date VARCHAR(255))",
		"INSERT INTO protections (id, owner, type, x, y, z, blockId, world) VALUES (1, 1, 0, 0, 0, 0, 54, 'w'), (2, 1, 0, 0, 0, 0, 54, 'w')",
	)
	_ = db.Close()

	var logged []string
	store, err := Open(path, WithLogf(func(format string, args ...any) { logged = append(logged, format) }))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Upgrade(context.Background()); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if indexExists(t, store.sqlDB, "protections_location") {
		t.Fatal("unique index created over duplicates")
	}
	if !indexExists(t, store.sqlDB, "protections_main") {
		t.Fatal("expected non-unique location index")
	}
	if len(logged) == 0 {
		t.Fatal("expected upgrade log lines")
	}
}

func TestUpgradeAddsPlayerNameKey(t *testing.T) {
	t.Parallel()

	for _, version := range []string{"5", "7"} {
		t.Run("version "+version, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "players.db")
			db, err := sql.Open("sqlite", path)
			if err != nil {
				t.Fatalf("open raw db: %v", err)
			}
			mustExec(t, db,
				"CREATE TABLE internal (name VARCHAR(40), value VARCHAR(40))",
				"INSERT INTO internal (name, value) VALUES ('version', '"+version+"')",
				"CREATE TABLE players (id INTEGER PRIMARY KEY AUTOINCREMENT, uuid VARCHAR(36), name VARCHAR(255))",
				"CREATE INDEX player_name ON players (name)",
				"INSERT INTO players (id, uuid, name) VALUES (1, NULL, 'Alice'), (2, '7c9e6679-7425-40de-944b-e07fc1f90ae7', 'Straße'), (3, NULL, NULL)",
			)
			_ = db.Close()

			store, err := Open(path)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			ctx := context.Background()
			if _, err := store.Upgrade(ctx); err != nil {
				t.Fatalf("upgrade: %v", err)
			}
			if !indexExists(t, store.sqlDB, "player_name_key") {
				t.Fatal("expected name key index")
			}

			alice, err := store.ListPlayersByNameKey(ctx, "alice")
			if err != nil || len(alice) != 1 || alice[0].ID != 1 || alice[0].Name != "Alice" {
				t.Fatalf("alice = %+v, %v", alice, err)
			}
			folded, err := store.ListPlayersByNameKey(ctx, domain.FoldName("STRASSE"))
			if err != nil || len(folded) != 1 || folded[0].ID != 2 {
				t.Fatalf("folded = %+v, %v", folded, err)
			}

			id, err := store.InsertPlayer(ctx, storage.PlayerRecord{Name: "alice", NameKey: "alice"})
			if err != nil {
				t.Fatalf("insert player: %v", err)
			}
			both, err := store.ListPlayersByNameKey(ctx, "alice")
			if err != nil || len(both) != 2 || both[1].ID != id {
				t.Fatalf("after insert = %+v, %v", both, err)
			}
		})
	}
}

func seedLegacyDatabase(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()
	mustExec(t, db,
		"CREATE TABLE protections (id INTEGER PRIMARY KEY, owner VARCHAR(255), type INTEGER, x INTEGER, y INTEGER, z INTEGER, data TEXT, blockId INTEGER, world VARCHAR(255), password VARCHAR(255), date VARCHAR(255))",
		"CREATE INDEX in1 ON protections (owner, x, y, z)",
		"CREATE TABLE history (id INTEGER PRIMARY KEY, protectionId INTEGER, player VARCHAR(255), x INTEGER, y INTEGER, z INTEGER, type INTEGER, status INTEGER, metadata VARCHAR(255), timestamp INTEGER)",
		"CREATE TABLE internal (name VARCHAR(40), value VARCHAR(40))",
		"INSERT INTO internal (name, value) VALUES ('version', '0')",
		`INSERT INTO protections (id, owner, type, x, y, z, data, blockId, world, password, date) VALUES
			(10, 'alice', 2, 1, 1, 1, '{"rights":[{"name":"bob","type":1,"rights":1}]}', 54, 'world', '', '2011-05-01 10:00:00.0'),
			(20, 'bob', 0, 2, 2, 2, NULL, 61, 'world', '', '2011-05-02 10:00:00.0')`,
		"INSERT INTO history (id, protectionId, player, x, y, z, type, status, metadata, timestamp) VALUES (5, 10, 'carol', 1, 1, 1, 0, 0, 'creator=alice', 1304244000)",
	)
}

func mustExec(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("exec %q: %v", statement, err)
		}
	}
}

func indexExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", name).Scan(&count); err != nil {
		t.Fatalf("check index %s: %v", name, err)
	}
	return count > 0
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wardstone.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.Upgrade(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("upgrade store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
