package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

const protectionSelect = `
SELECT p.id, p.owner, COALESCE(pl.uuid, ''), COALESCE(pl.name, ''), p.type,
       COALESCE(p.world, ''), p.x, p.y, p.z, p.blockId, COALESCE(p.password, ''),
       p.data, COALESCE(p.date, ''), COALESCE(p.last_accessed, 0)
FROM protections p
LEFT JOIN players pl ON pl.id = p.owner`

// InsertProtection stores a new protection and returns its generated id.
func (s *Store) InsertProtection(ctx context.Context, record storage.ProtectionRecord) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin protection insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Databases that kept the non-unique location index still reject
	// duplicates here.
	loc := record.Location
	existing, err := countRows(ctx, tx,
		"SELECT COUNT(*) FROM protections WHERE world = ? AND x = ? AND y = ? AND z = ?",
		loc.World, loc.X, loc.Y, loc.Z)
	if err != nil {
		return 0, fmt.Errorf("check protection location: %w", err)
	}
	if existing > 0 {
		return 0, storage.ErrAlreadyExists
	}

	result, err := tx.ExecContext(ctx, `
INSERT INTO protections (owner, type, x, y, z, flags, data, blockId, world, password, date, last_accessed)
VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		record.OwnerID, record.Kind, loc.X, loc.Y, loc.Z, nullableData(record.Data),
		record.BlockID, loc.World, record.Password, formatDate(record.CreatedAt), toUnix(record.LastAccessed),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrAlreadyExists
		}
		return 0, fmt.Errorf("insert protection: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read protection id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit protection insert: %w", err)
	}
	return id, nil
}

// UpsertProtection replaces every column of the row with record.ID.
func (s *Store) UpsertProtection(ctx context.Context, record storage.ProtectionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if record.ID <= 0 {
		return fmt.Errorf("protection id is required")
	}
	loc := record.Location
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO protections (id, owner, type, x, y, z, flags, data, blockId, world, password, date, last_accessed)
VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    owner = excluded.owner,
    type = excluded.type,
    x = excluded.x,
    y = excluded.y,
    z = excluded.z,
    data = excluded.data,
    blockId = excluded.blockId,
    world = excluded.world,
    password = excluded.password,
    date = excluded.date,
    last_accessed = excluded.last_accessed`,
		record.ID, record.OwnerID, record.Kind, loc.X, loc.Y, loc.Z, nullableData(record.Data),
		record.BlockID, loc.World, record.Password, formatDate(record.CreatedAt), toUnix(record.LastAccessed),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("upsert protection: %w", err)
	}
	return nil
}

// GetProtection loads one protection by id.
func (s *Store) GetProtection(ctx context.Context, id int64) (storage.ProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ProtectionRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, protectionSelect+" WHERE p.id = ?", id)
	record, err := scanProtection(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProtectionRecord{}, storage.ErrNotFound
		}
		return storage.ProtectionRecord{}, fmt.Errorf("get protection: %w", err)
	}
	return record, nil
}

// GetProtectionAt loads the protection at loc.
func (s *Store) GetProtectionAt(ctx context.Context, loc domain.Location) (storage.ProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ProtectionRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		protectionSelect+" WHERE p.world = ? AND p.x = ? AND p.y = ? AND p.z = ? ORDER BY p.id LIMIT 1",
		loc.World, loc.X, loc.Y, loc.Z)
	record, err := scanProtection(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProtectionRecord{}, storage.ErrNotFound
		}
		return storage.ProtectionRecord{}, fmt.Errorf("get protection at %s: %w", loc, err)
	}
	return record, nil
}

// ListProtectionsInBounds lists protections inside bounds, inclusive, by id.
func (s *Store) ListProtectionsInBounds(ctx context.Context, bounds domain.Bounds) ([]storage.ProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	b := bounds.Normalized()
	return s.listProtections(ctx, "list protections in bounds",
		protectionSelect+` WHERE p.world = ? AND p.x BETWEEN ? AND ? AND p.y BETWEEN ? AND ? AND p.z BETWEEN ? AND ? ORDER BY p.id`,
		b.World, b.MinX, b.MaxX, b.MinY, b.MaxY, b.MinZ, b.MaxZ)
}

// ListRecentProtections returns up to limit protections, newest id first.
func (s *Store) ListRecentProtections(ctx context.Context, limit int) ([]storage.ProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.listProtections(ctx, "list recent protections",
		protectionSelect+" ORDER BY p.id DESC LIMIT ?", limitOrAll(limit))
}

// ListProtectionsByOwner lists one owner's protections by id.
func (s *Store) ListProtectionsByOwner(ctx context.Context, ownerID int64, page storage.Page) ([]storage.ProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	limit, offset := pageArgs(page)
	return s.listProtections(ctx, "list protections by owner",
		protectionSelect+" WHERE p.owner = ? ORDER BY p.id LIMIT ? OFFSET ?", ownerID, limit, offset)
}

// ListProtectionsByKind lists every protection of one kind by id.
func (s *Store) ListProtectionsByKind(ctx context.Context, kind int) ([]storage.ProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.listProtections(ctx, "list protections by kind",
		protectionSelect+" WHERE p.type = ? ORDER BY p.id", kind)
}

// ListProtections lists every protection by id.
func (s *Store) ListProtections(ctx context.Context) ([]storage.ProtectionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.listProtections(ctx, "list protections", protectionSelect+" ORDER BY p.id")
}

// DeleteProtection removes one protection. History rows are kept.
func (s *Store) DeleteProtection(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM protections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete protection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete protection rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteProtectionsByOwner removes every protection of one owner.
func (s *Store) DeleteProtectionsByOwner(ctx context.Context, ownerID int64) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM protections WHERE owner = ?", ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete protections by owner: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAllProtections empties the protections table.
func (s *Store) DeleteAllProtections(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM protections")
	if err != nil {
		return 0, fmt.Errorf("delete protections: %w", err)
	}
	return result.RowsAffected()
}

// CountProtections counts every protection.
func (s *Store) CountProtections(ctx context.Context) (int64, error) {
	return s.count(ctx, "count protections", "SELECT COUNT(*) FROM protections")
}

// CountProtectionsByKind counts protections of one kind.
func (s *Store) CountProtectionsByKind(ctx context.Context, kind int) (int64, error) {
	return s.count(ctx, "count protections by kind", "SELECT COUNT(*) FROM protections WHERE type = ?", kind)
}

// CountProtectionsByOwner counts one owner's protections.
func (s *Store) CountProtectionsByOwner(ctx context.Context, ownerID int64) (int64, error) {
	return s.count(ctx, "count protections by owner", "SELECT COUNT(*) FROM protections WHERE owner = ?", ownerID)
}

// CountProtectionsByOwnerAndBlock counts one owner's protections of one block type.
func (s *Store) CountProtectionsByOwnerAndBlock(ctx context.Context, ownerID int64, blockID int) (int64, error) {
	return s.count(ctx, "count protections by owner and block",
		"SELECT COUNT(*) FROM protections WHERE owner = ? AND blockId = ?", ownerID, blockID)
}

func (s *Store) count(ctx context.Context, label, query string, args ...any) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	count, err := countRows(ctx, s.sqlDB, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	return count, nil
}

func (s *Store) listProtections(ctx context.Context, label, query string, args ...any) ([]storage.ProtectionRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer rows.Close()

	records := make([]storage.ProtectionRecord, 0)
	for rows.Next() {
		record, err := scanProtection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan protection row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return records, nil
}

func scanProtection(scan scanner) (storage.ProtectionRecord, error) {
	var (
		record       storage.ProtectionRecord
		data         sql.NullString
		date         string
		lastAccessed int64
	)
	if err := scan(
		&record.ID,
		&record.OwnerID,
		&record.OwnerUUID,
		&record.OwnerName,
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
		return storage.ProtectionRecord{}, err
	}
	if data.Valid {
		record.Data = []byte(data.String)
	}
	record.CreatedAt = parseDate(date)
	record.LastAccessed = fromUnix(lastAccessed)
	return record, nil
}

func nullableData(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}
