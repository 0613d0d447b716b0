package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	sqlitemigrate "github.com/louisbranch/wardstone/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage/sqlite/migrations"
)

// LatestVersion is the schema version after every upgrade step has run.
const LatestVersion = 7

// Upgrade applies pending schema upgrade steps and returns the resulting
// version.
func (s *Store) Upgrade(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return sqlitemigrate.ApplySteps(ctx, s.sqlDB, s.upgradeSteps(), s.logf)
}

// SchemaVersion returns the persisted schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return sqlitemigrate.ReadVersion(ctx, s.sqlDB)
}

func (s *Store) upgradeSteps() []sqlitemigrate.Step {
	return []sqlitemigrate.Step{
		{Version: 1, Name: "location indexes", Apply: upgradeLocationIndexes},
		{Version: 2, Name: "internal index", Apply: execAll(
			"CREATE INDEX IF NOT EXISTS internal_main ON internal(name)",
		)},
		// Version 3 converted a column type on a server engine that is no
		// longer supported; it only advances the version here.
		{Version: 3, Name: "reserved", Apply: execAll()},
		{Version: 4, Name: "type index", Apply: execAll(
			"CREATE INDEX IF NOT EXISTS protections_type ON protections(type)",
		)},
		{Version: 5, Name: "unique location", Apply: s.upgradeUniqueLocation},
		{Version: 6, Name: "player indexes", Apply: upgradePlayerIndexes},
		{Version: 7, Name: "stage legacy tables", Apply: s.upgradeStageLegacyTables},
	}
}

var (
	protectionIndexes = []string{
		"CREATE INDEX IF NOT EXISTS protections_main ON protections(x, y, z, world)",
		"CREATE INDEX IF NOT EXISTS protections_utility ON protections(owner)",
		"CREATE INDEX IF NOT EXISTS protections_type ON protections(type)",
	}
	historyIndexes = []string{
		"CREATE INDEX IF NOT EXISTS history_main ON history(protectionId)",
		"CREATE INDEX IF NOT EXISTS history_utility ON history(player)",
		"CREATE INDEX IF NOT EXISTS history_utility2 ON history(x, y, z)",
	}
	playerIndexes = []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS player_uuid ON players(uuid)",
	}
)

const playerNameKeyIndex = "CREATE INDEX IF NOT EXISTS player_name_key ON players(name_key)"

const uniqueLocationIndex = "CREATE UNIQUE INDEX IF NOT EXISTS protections_location ON protections(world, x, y, z)"

func execAll(statements ...string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, statement := range statements {
			if err := execTolerant(ctx, tx, statement); err != nil {
				return err
			}
		}
		return nil
	}
}

// execTolerant runs one DDL statement, treating already-applied changes as
// success.
func execTolerant(ctx context.Context, tx *sql.Tx, statement string) error {
	if _, err := tx.ExecContext(ctx, statement); err != nil && !sqlitemigrate.IsAlreadyExistsError(err) {
		return fmt.Errorf("exec %q: %w", statement, err)
	}
	return nil
}

func upgradeLocationIndexes(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		"ALTER TABLE protections ADD COLUMN flags INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE protections ADD COLUMN last_accessed INTEGER NOT NULL DEFAULT 0",
	}
	for i := 1; i <= 7; i++ {
		statements = append(statements, fmt.Sprintf("DROP INDEX IF EXISTS in%d", i))
	}
	statements = append(statements, protectionIndexes[:2]...)
	statements = append(statements, historyIndexes...)
	return execAll(statements...)(ctx, tx)
}

func upgradePlayerIndexes(ctx context.Context, tx *sql.Tx) error {
	if err := ensurePlayerNameKey(ctx, tx); err != nil {
		return err
	}
	return execAll(playerIndexes...)(ctx, tx)
}

// ensurePlayerNameKey adds the folded name column to a players table created
// without it, fills the column for rows that lack a value and indexes it.
func ensurePlayerNameKey(ctx context.Context, tx *sql.Tx) error {
	if err := execTolerant(ctx, tx, "ALTER TABLE players ADD COLUMN name_key VARCHAR(255) NOT NULL DEFAULT ''"); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, name FROM players WHERE name_key = '' AND COALESCE(name, '') <> ''")
	if err != nil {
		return fmt.Errorf("list unkeyed players: %w", err)
	}
	keys := make(map[int64]string)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan unkeyed player: %w", err)
		}
		keys[id] = domain.FoldName(name)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close unkeyed players: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate unkeyed players: %w", err)
	}
	for id, key := range keys {
		if _, err := tx.ExecContext(ctx, "UPDATE players SET name_key = ? WHERE id = ?", key, id); err != nil {
			return fmt.Errorf("backfill player %d name key: %w", id, err)
		}
	}
	return execTolerant(ctx, tx, playerNameKeyIndex)
}

// upgradeUniqueLocation enforces one protection per location. Databases that
// already hold duplicates keep the plain location index.
func (s *Store) upgradeUniqueLocation(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, uniqueLocationIndex); err != nil {
		if isUniqueViolation(err) {
			s.logf("schema: duplicate protection locations found, keeping non-unique location index")
			return nil
		}
		return fmt.Errorf("create unique location index: %w", err)
	}
	return nil
}

// upgradeStageLegacyTables moves name-keyed protection and history rows into
// the *_old_converting tables and recreates empty identity-keyed tables. The
// new tables continue the legacy id sequence so fresh rows never collide with
// rows still waiting to be migrated.
func (s *Store) upgradeStageLegacyTables(ctx context.Context, tx *sql.Tx) error {
	schema, err := fs.ReadFile(migrations.FS, migrations.SchemaFile)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	stageProtections, err := hasTextColumn(ctx, tx, "protections", "owner")
	if err != nil {
		return err
	}
	stageHistory, err := hasTextColumn(ctx, tx, "history", "player")
	if err != nil {
		return err
	}
	if !stageProtections && !stageHistory {
		return nil
	}

	if stageProtections {
		if err := renameTable(ctx, tx, "protections", legacyProtectionsTable,
			"protections_main", "protections_utility", "protections_type", "protections_location"); err != nil {
			return err
		}
		s.logf("schema: staged legacy protections in %s", legacyProtectionsTable)
	}
	if stageHistory {
		if err := renameTable(ctx, tx, "history", legacyHistoryTable,
			"history_main", "history_utility", "history_utility2"); err != nil {
			return err
		}
		s.logf("schema: staged legacy history in %s", legacyHistoryTable)
	}

	if _, err := tx.ExecContext(ctx, sqlitemigrate.ExtractUpMigration(string(schema))); err != nil {
		return fmt.Errorf("recreate tables: %w", err)
	}

	if stageProtections {
		statements := append(append([]string{}, protectionIndexes...), uniqueLocationIndex)
		if err := execAll(statements...)(ctx, tx); err != nil {
			return err
		}
		if err := continueSequence(ctx, tx, "protections", legacyProtectionsTable); err != nil {
			return err
		}
	}
	if stageHistory {
		if err := execAll(historyIndexes...)(ctx, tx); err != nil {
			return err
		}
		if err := continueSequence(ctx, tx, "history", legacyHistoryTable); err != nil {
			return err
		}
	}
	return nil
}

func hasTextColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT 1 FROM %s WHERE typeof(%s) = 'text' LIMIT 1)", table, column)
	count, err := countRows(ctx, tx, query)
	if err != nil {
		return false, fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

func renameTable(ctx context.Context, tx *sql.Tx, from, to string, indexes ...string) error {
	for _, index := range indexes {
		if _, err := tx.ExecContext(ctx, "DROP INDEX IF EXISTS "+index); err != nil {
			return fmt.Errorf("drop index %s: %w", index, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", from, to)); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	return nil
}

func continueSequence(ctx context.Context, tx *sql.Tx, table, legacy string) error {
	var maxID int64
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %s", legacy)).Scan(&maxID); err != nil {
		return fmt.Errorf("read %s max id: %w", legacy, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table); err != nil {
		return fmt.Errorf("reset %s sequence: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)", table, maxID); err != nil {
		return fmt.Errorf("seed %s sequence: %w", table, err)
	}
	return nil
}
