package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

const legacyProtectionSelect = `
SELECT id, COALESCE(owner, ''), type, COALESCE(world, ''), x, y, z, blockId,
       COALESCE(password, ''), data, COALESCE(date, ''), COALESCE(last_accessed, 0)
FROM ` + legacyProtectionsTable

const legacyHistorySelect = `
SELECT id, protectionId, COALESCE(player, ''), x, y, z, type, status,
       COALESCE(metadata, ''), COALESCE(timestamp, 0)
FROM ` + legacyHistoryTable

// HasLegacyRows reports whether any staged legacy row is left.
func (s *Store) HasLegacyRows(ctx context.Context) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	for _, table := range []string{legacyProtectionsTable, legacyHistoryTable} {
		exists, err := tableExists(ctx, s.sqlDB, table)
		if err != nil {
			return false, err
		}
		if !exists {
			continue
		}
		count, err := countRows(ctx, s.sqlDB, "SELECT COUNT(*) FROM (SELECT 1 FROM "+table+" LIMIT 1)")
		if err != nil {
			return false, fmt.Errorf("check %s rows: %w", table, err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// GetLegacyProtection loads one staged legacy protection by id.
func (s *Store) GetLegacyProtection(ctx context.Context, id int64) (storage.LegacyProtectionRecord, error) {
	return s.getLegacyProtection(ctx, legacyProtectionSelect+" WHERE id = ?", id)
}

// GetLegacyProtectionAt loads the staged legacy protection at loc.
func (s *Store) GetLegacyProtectionAt(ctx context.Context, loc domain.Location) (storage.LegacyProtectionRecord, error) {
	return s.getLegacyProtection(ctx,
		legacyProtectionSelect+" WHERE world = ? AND x = ? AND y = ? AND z = ? ORDER BY id LIMIT 1",
		loc.World, loc.X, loc.Y, loc.Z)
}

func (s *Store) getLegacyProtection(ctx context.Context, query string, args ...any) (storage.LegacyProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.LegacyProtectionRecord{}, err
	}
	exists, err := tableExists(ctx, s.sqlDB, legacyProtectionsTable)
	if err != nil {
		return storage.LegacyProtectionRecord{}, err
	}
	if !exists {
		return storage.LegacyProtectionRecord{}, storage.ErrNotFound
	}
	record, err := scanLegacyProtection(s.sqlDB.QueryRowContext(ctx, query, args...).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LegacyProtectionRecord{}, storage.ErrNotFound
		}
		return storage.LegacyProtectionRecord{}, fmt.Errorf("get legacy protection: %w", err)
	}
	return record, nil
}

// ListLegacyProtections returns up to limit staged rows with id > afterID.
func (s *Store) ListLegacyProtections(ctx context.Context, afterID int64, limit int) ([]storage.LegacyProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	exists, err := tableExists(ctx, s.sqlDB, legacyProtectionsTable)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, legacyProtectionSelect+" WHERE id > ? ORDER BY id LIMIT ?", afterID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list legacy protections: %w", err)
	}
	defer rows.Close()

	records := make([]storage.LegacyProtectionRecord, 0)
	for rows.Next() {
		record, err := scanLegacyProtection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan legacy protection row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list legacy protections: %w", err)
	}
	return records, nil
}

// DeleteLegacyProtection removes a staged legacy protection if present.
func (s *Store) DeleteLegacyProtection(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	exists, err := tableExists(ctx, s.sqlDB, legacyProtectionsTable)
	if err != nil || !exists {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+legacyProtectionsTable+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete legacy protection: %w", err)
	}
	return nil
}

// ListLegacyNames returns distinct owner and actor names across both staged
// tables, ordered by name.
func (s *Store) ListLegacyNames(ctx context.Context, offset, limit int) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var sources []string
	for _, source := range []struct{ table, column string }{
		{legacyProtectionsTable, "owner"},
		{legacyHistoryTable, "player"},
	} {
		table, column := source.table, source.column
		exists, err := tableExists(ctx, s.sqlDB, table)
		if err != nil {
			return nil, err
		}
		if exists {
			sources = append(sources, fmt.Sprintf("SELECT %s AS name FROM %s WHERE %s IS NOT NULL AND %s != ''", column, table, column, column))
		}
	}
	if len(sources) == 0 {
		return nil, nil
	}
	query := "SELECT name FROM (" + sources[0]
	for _, source := range sources[1:] {
		query += " UNION " + source
	}
	query += ") ORDER BY name LIMIT ? OFFSET ?"

	if offset < 0 {
		offset = 0
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, limitOrAll(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list legacy names: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan legacy name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list legacy names: %w", err)
	}
	return names, nil
}

// GetLegacyHistory loads one staged legacy history row by id.
func (s *Store) GetLegacyHistory(ctx context.Context, id int64) (storage.LegacyHistoryRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.LegacyHistoryRecord{}, err
	}
	exists, err := tableExists(ctx, s.sqlDB, legacyHistoryTable)
	if err != nil {
		return storage.LegacyHistoryRecord{}, err
	}
	if !exists {
		return storage.LegacyHistoryRecord{}, storage.ErrNotFound
	}
	record, err := scanLegacyHistory(s.sqlDB.QueryRowContext(ctx, legacyHistorySelect+" WHERE id = ?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LegacyHistoryRecord{}, storage.ErrNotFound
		}
		return storage.LegacyHistoryRecord{}, fmt.Errorf("get legacy history: %w", err)
	}
	return record, nil
}

// ListLegacyHistory returns up to limit staged history rows with id > afterID.
func (s *Store) ListLegacyHistory(ctx context.Context, afterID int64, limit int) ([]storage.LegacyHistoryRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	exists, err := tableExists(ctx, s.sqlDB, legacyHistoryTable)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, legacyHistorySelect+" WHERE id > ? ORDER BY id LIMIT ?", afterID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list legacy history: %w", err)
	}
	defer rows.Close()

	records := make([]storage.LegacyHistoryRecord, 0)
	for rows.Next() {
		record, err := scanLegacyHistory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan legacy history row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list legacy history: %w", err)
	}
	return records, nil
}

func scanLegacyProtection(scan scanner) (storage.LegacyProtectionRecord, error) {
	var (
		record       storage.LegacyProtectionRecord
		data         sql.NullString
		date         string
		lastAccessed int64
	)
	if err := scan(
		&record.ID,
		&record.Owner,
		&record.Kind,
		&record.Location.World,
		&record.Location.X,
		&record.Location.Y,
		&record.Location.Z,
		&record.BlockID,
		&record.Password,
		&data,
		&date,
		&lastAccessed,
	); err != nil {
		return storage.LegacyProtectionRecord{}, err
	}
	if data.Valid {
		record.Data = []byte(data.String)
	}
	record.CreatedAt = parseDate(date)
	record.LastAccessed = fromUnix(lastAccessed)
	return record, nil
}

func scanLegacyHistory(scan scanner) (storage.LegacyHistoryRecord, error) {
	var (
		record    storage.LegacyHistoryRecord
		timestamp int64
	)
	if err := scan(
		&record.ID,
		&record.ProtectionID,
		&record.Actor,
		&record.X,
		&record.Y,
		&record.Z,
		&record.Type,
		&record.Status,
		&record.Metadata,
		&timestamp,
	); err != nil {
		return storage.LegacyHistoryRecord{}, err
	}
	record.Timestamp = fromUnix(timestamp)
	return record, nil
}
