package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/louisbranch/wardstone/internal/services/protection/identity"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
	"github.com/louisbranch/wardstone/internal/services/protection/storage/sqlite"
)

const stableOwner = "0f8fad5b-d9cb-469f-a165-70867728950e"

func TestLegacyStagesConvertEveryRow(t *testing.T) {
	t.Parallel()

	store := openLegacyStore(t)
	registry := identity.NewRegistry(store)
	ctx := context.Background()

	p := New(NewStateStore(store), LegacyStages(store, registry, nil), Options{BatchSize: 2})
	present, err := store.HasLegacyRows(ctx)
	if err != nil || !present {
		t.Fatalf("legacy rows = %v, %v", present, err)
	}
	if err := p.Load(ctx, present); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	protections, err := store.ListProtections(ctx)
	if err != nil {
		t.Fatalf("list protections: %v", err)
	}
	// Row 6 shares row 1's location and is skipped.
	if len(protections) != 5 {
		t.Fatalf("protections = %d, want 5", len(protections))
	}
	if stats := p.Stats(); stats.Failed != 1 {
		t.Fatalf("stats = %+v, want one skipped row", stats)
	}

	alice, err := registry.ResolveName(ctx, "alice")
	if err != nil || len(alice) != 1 {
		t.Fatalf("alice = %+v, %v", alice, err)
	}
	owned, err := store.CountProtectionsByOwner(ctx, alice[0].ID)
	if err != nil || owned != 2 {
		t.Fatalf("alice owns %d, %v", owned, err)
	}
	stable, err := store.GetProtection(ctx, 4)
	if err != nil {
		t.Fatalf("get protection 4: %v", err)
	}
	if stable.OwnerUUID != stableOwner {
		t.Fatalf("owner uuid = %q", stable.OwnerUUID)
	}

	history, err := store.ListHistory(ctx, storage.Page{})
	if err != nil || len(history) != 3 {
		t.Fatalf("history = %+v, %v", history, err)
	}
	carol, err := registry.ResolveName(ctx, "carol")
	if err != nil || len(carol) != 1 {
		t.Fatalf("carol = %+v, %v", carol, err)
	}
	if history[0].ActorID != carol[0].ID {
		t.Fatalf("newest history actor = %d, want carol %d", history[0].ActorID, carol[0].ID)
	}
}

func TestCrashResumeMatchesUninterruptedRun(t *testing.T) {
	t.Parallel()

	baseline := openLegacyStore(t)
	runToCompletion(t, baseline, baseline)

	for _, cutAfter := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("cut after %d upserts", cutAfter), func(t *testing.T) {
			t.Parallel()

			store := openLegacyStore(t)
			ctx, cancel := context.WithCancel(context.Background())
			source := &cuttingSource{Store: store, remaining: cutAfter, cancel: cancel}

			p := New(NewStateStore(store), LegacyStages(source, identity.NewRegistry(store), nil), Options{BatchSize: 2})
			if err := p.Load(ctx, true); err != nil {
				t.Fatalf("load: %v", err)
			}
			if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("interrupted run err = %v", err)
			}

			runToCompletion(t, store, store)
			assertSameRows(t, baseline, store)
		})
	}
}

func runToCompletion(t *testing.T, store *sqlite.Store, source LegacySource) {
	t.Helper()
	ctx := context.Background()
	p := New(NewStateStore(store), LegacyStages(source, identity.NewRegistry(store), nil), Options{BatchSize: 2})
	if err := p.Load(ctx, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func assertSameRows(t *testing.T, want, got *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	wantProtections, err := want.ListProtections(ctx)
	if err != nil {
		t.Fatalf("list baseline protections: %v", err)
	}
	gotProtections, err := got.ListProtections(ctx)
	if err != nil {
		t.Fatalf("list resumed protections: %v", err)
	}
	if fmt.Sprintf("%+v", wantProtections) != fmt.Sprintf("%+v", gotProtections) {
		t.Fatalf("protections differ:\nwant %+v\ngot  %+v", wantProtections, gotProtections)
	}

	wantHistory, err := want.ListHistory(ctx, storage.Page{})
	if err != nil {
		t.Fatalf("list baseline history: %v", err)
	}
	gotHistory, err := got.ListHistory(ctx, storage.Page{})
	if err != nil {
		t.Fatalf("list resumed history: %v", err)
	}
	if fmt.Sprintf("%+v", wantHistory) != fmt.Sprintf("%+v", gotHistory) {
		t.Fatalf("history differs:\nwant %+v\ngot  %+v", wantHistory, gotHistory)
	}
}

// cuttingSource cancels the run after a number of protection upserts.
type cuttingSource struct {
	*sqlite.Store
	remaining int
	cancel    context.CancelFunc
}

func (c *cuttingSource) UpsertProtection(ctx context.Context, record storage.ProtectionRecord) error {
	if err := c.Store.UpsertProtection(ctx, record); err != nil {
		return err
	}
	c.remaining--
	if c.remaining == 0 {
		c.cancel()
	}
	return nil
}

func openLegacyStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	statements := []string{
		"CREATE TABLE protections (id INTEGER PRIMARY KEY, owner VARCHAR(255), type INTEGER, x INTEGER, y INTEGER, z INTEGER, data TEXT, blockId INTEGER, world VARCHAR(255), password VARCHAR(255), date VARCHAR(255))",
		"CREATE TABLE history (id INTEGER PRIMARY KEY, protectionId INTEGER, player VARCHAR(255), x INTEGER, y INTEGER, z INTEGER, type INTEGER, status INTEGER, metadata VARCHAR(255), timestamp INTEGER)",
		`INSERT INTO protections (id, owner, type, x, y, z, data, blockId, world, password, date) VALUES
			(1, 'alice', 2, 0, 64, 0, '{"rights":[{"name":"bob","type":1,"rights":1}],"note":"kept"}', 54, 'world', '', '2011-05-01 10:00:00.0'),
			(2, 'bob', 0, 1, 64, 0, NULL, 54, 'world', '', '2011-05-01 10:00:00.0'),
			(3, 'Alice', 1, 2, 64, 0, '', 61, 'world', 'hash', '2011-05-01 10:00:00.0'),
			(4, '` + stableOwner + `', 2, 3, 64, 0, '{}', 54, 'world', '', '2011-05-01 10:00:00.0'),
			(5, 'carol', 2, 4, 64, 0, '{broken', 54, 'nether', '', '2011-05-01 10:00:00.0'),
			(6, 'dave', 2, 0, 64, 0, NULL, 54, 'world2', '', '2011-05-01 10:00:00.0')`,
		"UPDATE protections SET world = 'world' WHERE id = 6",
		`INSERT INTO history (id, protectionId, player, x, y, z, type, status, metadata, timestamp) VALUES
			(1, 1, 'alice', 0, 64, 0, 0, 0, 'creator=alice', 1304244000),
			(2, 2, 'bob', 1, 64, 0, 0, 0, 'creator=bob', 1304244001),
			(3, 1, 'carol', 0, 64, 0, 1, 0, '', 1304244002)`,
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("exec %q: %v", statement, err)
		}
	}
	_ = db.Close()

	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.Upgrade(context.Background()); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	return store
}
