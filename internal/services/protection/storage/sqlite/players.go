package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/wardstone/internal/services/protection/storage"
)

const playerSelect = "SELECT id, COALESCE(uuid, ''), COALESCE(name, ''), COALESCE(name_key, '') FROM players"

// GetPlayer loads one identity by id.
func (s *Store) GetPlayer(ctx context.Context, id int64) (storage.PlayerRecord, error) {
	return s.getPlayer(ctx, playerSelect+" WHERE id = ?", id)
}

// GetPlayerByUUID loads the identity holding uuid.
func (s *Store) GetPlayerByUUID(ctx context.Context, uuid string) (storage.PlayerRecord, error) {
	uuid = strings.ToLower(strings.TrimSpace(uuid))
	if uuid == "" {
		return storage.PlayerRecord{}, storage.ErrNotFound
	}
	return s.getPlayer(ctx, playerSelect+" WHERE uuid = ?", uuid)
}

func (s *Store) getPlayer(ctx context.Context, query string, args ...any) (storage.PlayerRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PlayerRecord{}, err
	}
	record, err := scanPlayer(s.sqlDB.QueryRowContext(ctx, query, args...).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PlayerRecord{}, storage.ErrNotFound
		}
		return storage.PlayerRecord{}, fmt.Errorf("get player: %w", err)
	}
	return record, nil
}

// ListPlayersByNameKey returns every identity whose folded name matches.
func (s *Store) ListPlayersByNameKey(ctx context.Context, nameKey string) ([]storage.PlayerRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, playerSelect+" WHERE name_key = ? ORDER BY id", nameKey)
	if err != nil {
		return nil, fmt.Errorf("list players by name: %w", err)
	}
	defer rows.Close()

	records := make([]storage.PlayerRecord, 0)
	for rows.Next() {
		record, err := scanPlayer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players by name: %w", err)
	}
	return records, nil
}

// InsertPlayer stores a new identity. A duplicate uuid yields ErrAlreadyExists.
func (s *Store) InsertPlayer(ctx context.Context, record storage.PlayerRecord) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO players (uuid, name, name_key) VALUES (?, ?, ?)",
		nullableUUID(record.UUID), record.Name, record.NameKey)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrAlreadyExists
		}
		return 0, fmt.Errorf("insert player: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read player id: %w", err)
	}
	return id, nil
}

// UpdatePlayer rewrites the uuid and name of an existing identity.
func (s *Store) UpdatePlayer(ctx context.Context, record storage.PlayerRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE players SET uuid = ?, name = ?, name_key = ? WHERE id = ?",
		nullableUUID(record.UUID), record.Name, record.NameKey, record.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("update player: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update player rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanPlayer(scan scanner) (storage.PlayerRecord, error) {
	var record storage.PlayerRecord
	if err := scan(&record.ID, &record.UUID, &record.Name, &record.NameKey); err != nil {
		return storage.PlayerRecord{}, err
	}
	return record, nil
}

func nullableUUID(value string) any {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil
	}
	return value
}
