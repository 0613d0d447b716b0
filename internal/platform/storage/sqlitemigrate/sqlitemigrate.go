// Package sqlitemigrate applies an embedded base schema and ordered,
// versioned upgrade steps to a SQLite database. The current version lives in
// the key/value `internal` table so a crash between steps resumes at the last
// persisted version.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

const (
	internalTable = "internal"

	// VersionKey names the internal row holding the schema version.
	VersionKey = "version"
)

// Step upgrades the schema from Version-1 to Version. Apply runs inside the
// transaction that also persists Version, and must tolerate being re-run
// against a partially upgraded schema.
type Step struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// ApplySchema executes the Up section of an embedded schema file. The file is
// expected to use CREATE ... IF NOT EXISTS so it can run on every start.
func ApplySchema(ctx context.Context, sqlDB *sql.DB, schemaFS fs.FS, name string) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}
	content, err := fs.ReadFile(schemaFS, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("read schema %s: %w", name, err)
	}
	upSQL := ExtractUpMigration(string(content))
	if strings.TrimSpace(upSQL) == "" {
		return nil
	}
	if _, err := sqlDB.ExecContext(ctx, upSQL); err != nil && !IsAlreadyExistsError(err) {
		return fmt.Errorf("exec schema %s: %w", name, err)
	}
	return nil
}

// ReadVersion returns the persisted schema version, or zero when none has
// been recorded yet.
func ReadVersion(ctx context.Context, sqlDB *sql.DB) (int, error) {
	if sqlDB == nil {
		return 0, fmt.Errorf("sql db is required")
	}
	var raw string
	err := sqlDB.QueryRowContext(ctx, "SELECT value FROM "+internalTable+" WHERE name = ?", VersionKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return version, nil
}

// ApplySteps runs every step newer than the persisted version in increasing
// version order and returns the resulting version. Each step commits together
// with its version bump.
func ApplySteps(ctx context.Context, sqlDB *sql.DB, steps []Step, logf func(string, ...any)) (int, error) {
	if sqlDB == nil {
		return 0, fmt.Errorf("sql db is required")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	ordered, err := orderSteps(steps)
	if err != nil {
		return 0, err
	}

	current, err := ReadVersion(ctx, sqlDB)
	if err != nil {
		return 0, err
	}

	for _, step := range ordered {
		if step.Version <= current {
			continue
		}
		if err := ctx.Err(); err != nil {
			return current, err
		}

		tx, err := sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return current, fmt.Errorf("begin upgrade %d: %w", step.Version, err)
		}
		if err := step.Apply(ctx, tx); err != nil && !IsAlreadyExistsError(err) {
			_ = tx.Rollback()
			return current, fmt.Errorf("apply upgrade %d (%s): %w", step.Version, step.Name, err)
		}
		if err := WriteInternal(ctx, tx, VersionKey, strconv.Itoa(step.Version)); err != nil {
			_ = tx.Rollback()
			return current, fmt.Errorf("record upgrade %d: %w", step.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return current, fmt.Errorf("commit upgrade %d: %w", step.Version, err)
		}

		current = step.Version
		logf("schema: upgraded to version %d (%s)", step.Version, step.Name)
	}
	return current, nil
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteInternal upserts one key/value row in the internal table. Older
// databases carry no unique index on name, so the write is an update followed
// by an insert when nothing matched.
func WriteInternal(ctx context.Context, exec Execer, name, value string) error {
	result, err := exec.ExecContext(ctx, "UPDATE "+internalTable+" SET value = ? WHERE name = ?", value, name)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	_, err = exec.ExecContext(ctx, "INSERT INTO "+internalTable+" (name, value) VALUES (?, ?)", name, value)
	return err
}

func orderSteps(steps []Step) ([]Step, error) {
	ordered := make([]Step, 0, len(steps))
	seen := make(map[int]struct{}, len(steps))
	for _, step := range steps {
		if step.Version <= 0 {
			return nil, fmt.Errorf("upgrade %q has non-positive version %d", step.Name, step.Version)
		}
		if step.Apply == nil {
			return nil, fmt.Errorf("upgrade %d has no apply function", step.Version)
		}
		if _, ok := seen[step.Version]; ok {
			return nil, fmt.Errorf("duplicate upgrade version %d", step.Version)
		}
		seen[step.Version] = struct{}{}
		ordered = append(ordered, step)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })
	return ordered, nil
}

// ExtractUpMigration returns the SQL in the -- +migrate Up section.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// IsAlreadyExistsError reports whether this error indicates idempotent DDL success.
func IsAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}
