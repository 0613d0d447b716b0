package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	sqlitemigrate "github.com/louisbranch/wardstone/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

// GetInternal reads one bookkeeping value.
func (s *Store) GetInternal(ctx context.Context, name string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	var value sql.NullString
	err := s.sqlDB.QueryRowContext(ctx, "SELECT value FROM internal WHERE name = ? LIMIT 1", name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get internal %s: %w", name, err)
	}
	return value.String, nil
}

// PutInternal writes every pair in one transaction.
func (s *Store) PutInternal(ctx context.Context, values map[string]string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin internal write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, name := range names {
		if err := sqlitemigrate.WriteInternal(ctx, tx, name, values[name]); err != nil {
			return fmt.Errorf("write internal %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit internal write: %w", err)
	}
	return nil
}
