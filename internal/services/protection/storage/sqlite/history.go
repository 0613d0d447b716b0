package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

const historySelect = `
SELECT id, protectionId, player, x, y, z, type, status, COALESCE(metadata, ''), COALESCE(timestamp, 0)
FROM history`

// InsertHistory appends one history row and returns its generated id.
func (s *Store) InsertHistory(ctx context.Context, record storage.HistoryRecord) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO history (protectionId, player, x, y, z, type, status, metadata, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ProtectionID, record.ActorID, record.X, record.Y, record.Z,
		record.Type, record.Status, record.Metadata, toUnix(record.Timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read history id: %w", err)
	}
	return id, nil
}

// UpsertHistory writes a history row with an explicit id.
func (s *Store) UpsertHistory(ctx context.Context, record storage.HistoryRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if record.ID <= 0 {
		return fmt.Errorf("history id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO history (id, protectionId, player, x, y, z, type, status, metadata, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    protectionId = excluded.protectionId,
    player = excluded.player,
    x = excluded.x,
    y = excluded.y,
    z = excluded.z,
    type = excluded.type,
    status = excluded.status,
    metadata = excluded.metadata,
    timestamp = excluded.timestamp`,
		record.ID, record.ProtectionID, record.ActorID, record.X, record.Y, record.Z,
		record.Type, record.Status, record.Metadata, toUnix(record.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

// GetHistory loads one history row by id.
func (s *Store) GetHistory(ctx context.Context, id int64) (storage.HistoryRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.HistoryRecord{}, err
	}
	record, err := scanHistory(s.sqlDB.QueryRowContext(ctx, historySelect+" WHERE id = ?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.HistoryRecord{}, storage.ErrNotFound
		}
		return storage.HistoryRecord{}, fmt.Errorf("get history: %w", err)
	}
	return record, nil
}

// ListHistoryByProtection lists one protection's history, newest first.
func (s *Store) ListHistoryByProtection(ctx context.Context, protectionID int64) ([]storage.HistoryRecord, error) {
	return s.listHistory(ctx, "list history by protection",
		historySelect+" WHERE protectionId = ? ORDER BY id DESC", protectionID)
}

// ListHistoryByActor lists one actor's history, newest first.
func (s *Store) ListHistoryByActor(ctx context.Context, actorID int64, page storage.Page) ([]storage.HistoryRecord, error) {
	limit, offset := pageArgs(page)
	return s.listHistory(ctx, "list history by actor",
		historySelect+" WHERE player = ? ORDER BY id DESC LIMIT ? OFFSET ?", actorID, limit, offset)
}

// ListHistoryByStatus lists every history row with status, newest first.
func (s *Store) ListHistoryByStatus(ctx context.Context, status int) ([]storage.HistoryRecord, error) {
	return s.listHistory(ctx, "list history by status",
		historySelect+" WHERE status = ? ORDER BY id DESC", status)
}

// ListHistoryAt lists history recorded at one coordinate, newest first.
func (s *Store) ListHistoryAt(ctx context.Context, x, y, z int) ([]storage.HistoryRecord, error) {
	return s.listHistory(ctx, "list history at coordinate",
		historySelect+" WHERE x = ? AND y = ? AND z = ? ORDER BY id DESC", x, y, z)
}

// ListHistoryByActorAt lists one actor's history at one coordinate, newest first.
func (s *Store) ListHistoryByActorAt(ctx context.Context, actorID int64, x, y, z int) ([]storage.HistoryRecord, error) {
	return s.listHistory(ctx, "list history by actor at coordinate",
		historySelect+" WHERE player = ? AND x = ? AND y = ? AND z = ? ORDER BY id DESC", actorID, x, y, z)
}

// ListHistory lists every history row, newest first.
func (s *Store) ListHistory(ctx context.Context, page storage.Page) ([]storage.HistoryRecord, error) {
	limit, offset := pageArgs(page)
	return s.listHistory(ctx, "list history",
		historySelect+" ORDER BY id DESC LIMIT ? OFFSET ?", limit, offset)
}

// CountHistory counts every history row.
func (s *Store) CountHistory(ctx context.Context) (int64, error) {
	return s.count(ctx, "count history", "SELECT COUNT(*) FROM history")
}

// CountHistoryByActor counts one actor's history rows.
func (s *Store) CountHistoryByActor(ctx context.Context, actorID int64) (int64, error) {
	return s.count(ctx, "count history by actor", "SELECT COUNT(*) FROM history WHERE player = ?", actorID)
}

// SetHistoryStatusByActor sets the status of every row of one actor.
func (s *Store) SetHistoryStatusByActor(ctx context.Context, actorID int64, status int) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx, "UPDATE history SET status = ? WHERE player = ?", status, actorID)
	if err != nil {
		return 0, fmt.Errorf("set history status: %w", err)
	}
	return result.RowsAffected()
}

// DeleteHistory removes one history row.
func (s *Store) DeleteHistory(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete history rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) listHistory(ctx context.Context, label, query string, args ...any) ([]storage.HistoryRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer rows.Close()

	records := make([]storage.HistoryRecord, 0)
	for rows.Next() {
		record, err := scanHistory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return records, nil
}

func scanHistory(scan scanner) (storage.HistoryRecord, error) {
	var (
		record    storage.HistoryRecord
		timestamp int64
	)
	if err := scan(
		&record.ID,
		&record.ProtectionID,
		&record.ActorID,
		&record.X,
		&record.Y,
		&record.Z,
		&record.Type,
		&record.Status,
		&record.Metadata,
		&timestamp,
	); err != nil {
		return storage.HistoryRecord{}, err
	}
	record.Timestamp = fromUnix(timestamp)
	return record, nil
}
