// Package sqlite persists save records in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/gaem/internal/gaem/saves"
	"github.com/louisbranch/gaem/internal/gaem/saves/sqlite/migrations"
	sqlitemigrate "github.com/louisbranch/gaem/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements saves.Backend over SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ saves.Backend = (*Store)(nil)

// Open opens a save store and applies bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LoadRecords returns the game's records ordered by key.
func (s *Store) LoadRecords(ctx context.Context, gameID string) ([]saves.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT key, value, checksum, updated_at FROM save_records WHERE game_id = ? ORDER BY key`,
		gameID)
	if err != nil {
		return nil, fmt.Errorf("query save records: %w", err)
	}
	defer rows.Close()

	var records []saves.Record
	for rows.Next() {
		var (
			rec       saves.Record
			updatedAt int64
		)
		if err := rows.Scan(&rec.Key, &rec.Data, &rec.Checksum, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan save record: %w", err)
		}
		rec.UpdatedAt = fromMillis(updatedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate save records: %w", err)
	}
	return records, nil
}

// SaveRecords replaces the game's records in one transaction.
func (s *Store) SaveRecords(ctx context.Context, gameID string, records []saves.Record) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM save_records WHERE game_id = ?`, gameID); err != nil {
		return fmt.Errorf("clear save records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO save_records (game_id, key, value, checksum, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare save insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, gameID, rec.Key, rec.Data, rec.Checksum, toMillis(rec.UpdatedAt)); err != nil {
			return fmt.Errorf("insert save record %s: %w", rec.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save records: %w", err)
	}
	return nil
}
