// Package store persists SMS records in a local SQLite database. It is the
// record source on the sending device and the sink the receiver hands the
// accumulated set to; writes suppress duplicates by content, address and a
// small timestamp window.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/erhanakin/sms-transfer-migration/internal/models"

	_ "modernc.org/sqlite"
)

// dupWindowMS bounds how far apart two timestamps may be for otherwise
// identical records to count as the same message.
const dupWindowMS = 5000

type SmsStore struct {
	db *sql.DB
}

func Open(dbPath string) (*SmsStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SmsStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SmsStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		address     TEXT NOT NULL,
		body        TEXT NOT NULL,
		date        INTEGER NOT NULL,
		type        TEXT NOT NULL DEFAULT 'inbox',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_addr_date ON messages(address, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRecords writes a batch of records, skipping any that already exist
// with the same address, body and a date within dupWindowMS. Returns how
// many were inserted.
func (s *SmsStore) SaveRecords(ctx context.Context, records []models.SmsRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, rec := range records {
		var dup int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM messages
			 WHERE address = ? AND body = ? AND date BETWEEN ? AND ?`,
			rec.Address, rec.Body, rec.Date-dupWindowMS, rec.Date+dupWindowMS,
		).Scan(&dup)
		if err != nil {
			return 0, fmt.Errorf("duplicate check: %w", err)
		}
		if dup > 0 {
			continue
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (address, body, date, type) VALUES (?, ?, ?, ?)`,
			rec.Address, rec.Body, rec.Date, rec.Type,
		)
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	slog.Info("Saved records", "received", len(records), "inserted", inserted,
		"duplicates", len(records)-inserted)

	return inserted, nil
}

// LoadAll reads the whole record set ordered by timestamp.
func (s *SmsStore) LoadAll(ctx context.Context) ([]models.SmsRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, body, date, type FROM messages ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SmsRecord
	for rows.Next() {
		var rec models.SmsRecord
		if err := rows.Scan(&rec.Address, &rec.Body, &rec.Date, &rec.Type); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *SmsStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages`).Scan(&n)
	return n, err
}

func (s *SmsStore) Close() error {
	return s.db.Close()
}
