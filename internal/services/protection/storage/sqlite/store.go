// Package sqlite provides the SQLite-backed protection storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/wardstone/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/wardstone/internal/platform/timeouts"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
	"github.com/louisbranch/wardstone/internal/services/protection/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	legacyProtectionsTable = "protections_old_converting"
	legacyHistoryTable     = "history_old_converting"

	// dateLayout matches the textual timestamps older databases stored.
	dateLayout = "2006-01-02 15:04:05.000"
)

// Store persists protections, identities, history and bookkeeping in SQLite.
type Store struct {
	sqlDB *sql.DB
	logf  func(string, ...any)
}

// Option configures a Store.
type Option func(*Store)

// WithLogf routes upgrade progress messages to logf.
func WithLogf(logf func(string, ...any)) Option {
	return func(s *Store) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// Open opens a protection SQLite store at the provided path and creates any
// missing tables. Schema upgrades are applied separately by Upgrade.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cleanPath, timeouts.StorageBusy.Milliseconds())
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	openCtx, cancel := context.WithTimeout(context.Background(), timeouts.StorageOpen)
	defer cancel()
	if err := sqlDB.PingContext(openCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, logf: func(string, ...any) {}}
	for _, opt := range opts {
		opt(store)
	}
	if err := sqlitemigrate.ApplySchema(openCtx, sqlDB, migrations.FS, migrations.SchemaFile); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	// Databases past the player index upgrade may still predate name_key.
	if err := store.ensurePlayerNameKey(openCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensurePlayerNameKey(ctx context.Context) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin player name key: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := ensurePlayerNameKey(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit player name key: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

type scanner func(dest ...any) error

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateLayout)
}

// parseDate accepts the current layout and the shorter forms older rows carry.
func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999999999", time.RFC3339Nano, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func toUnix(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().Unix()
}

func fromUnix(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return count > 0, nil
}

func countRows(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	var count int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func pageArgs(page storage.Page) (int, int) {
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return limitOrAll(page.Limit), offset
}

var _ storage.Store = (*Store)(nil)
