// Package sqlite stores content records in a single SQLite file. Every
// content table maps onto rows of one generic table, which suits local
// development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// timeLayout sorts lexicographically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS content_records (
		table_name TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (table_name, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_records_created ON content_records(table_name, created_at)`,
	`CREATE TABLE IF NOT EXISTS admin_activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action_type TEXT NOT NULL,
		description TEXT NOT NULL,
		user_identifier TEXT NOT NULL,
		details TEXT,
		created_at TEXT NOT NULL
	)`,
}

// Repository implements portfolio.Repository and portfolio.ActivityStore
// on SQLite
type Repository struct {
	db *sql.DB
}

var (
	_ portfolio.Repository    = (*Repository)(nil)
	_ portfolio.ActivityStore = (*Repository)(nil)
)

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection: writes are serialized and :memory: stays a single database
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, record *portfolio.Record) error {
	data, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO content_records (table_name, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		record.Table, record.ID.String(), string(data), formatTime(record.CreatedAt), formatTime(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *portfolio.Record) error {
	data, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE content_records SET data = ?, updated_at = ? WHERE table_name = ? AND id = ?`,
		string(data), formatTime(record.UpdatedAt), record.Table, record.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) GetRecord(ctx context.Context, table string, id uuid.UUID) (*portfolio.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM content_records WHERE table_name = ? AND id = ?`,
		table, id.String())
	record, err := scanRecord(table, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, portfolio.ErrRecordNotFound
	}
	return record, err
}

func (r *Repository) ListRecords(ctx context.Context, table string) ([]*portfolio.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, data, created_at, updated_at FROM content_records WHERE table_name = ? ORDER BY created_at, id`,
		table)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*portfolio.Record
	for rows.Next() {
		record, err := scanRecord(table, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteRecord(ctx context.Context, table string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM content_records WHERE table_name = ? AND id = ?`, table, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return requireRow(res)
}

// Activity operations

func (r *Repository) InsertActivity(ctx context.Context, entry *portfolio.ActivityLogEntry) error {
	var details sql.NullString
	if entry.Details != nil {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_activity_log (action_type, description, user_identifier, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ActionType, entry.Description, entry.UserIdentifier, details, formatTime(entry.OccurredAt))
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (r *Repository) ListActivity(ctx context.Context, limit int) ([]*portfolio.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT action_type, description, user_identifier, details, created_at FROM admin_activity_log ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []*portfolio.ActivityLogEntry
	for rows.Next() {
		var (
			e       portfolio.ActivityLogEntry
			details sql.NullString
			created string
		)
		if err := rows.Scan(&e.ActionType, &e.Description, &e.UserIdentifier, &details, &created); err != nil {
			return nil, err
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details: %w", err)
			}
		}
		if e.OccurredAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(table string, s scanner) (*portfolio.Record, error) {
	var id, data, created, updated string
	if err := s.Scan(&id, &data, &created, &updated); err != nil {
		return nil, err
	}

	record := &portfolio.Record{Table: table}
	var err error
	if record.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(data), &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	if record.Fields == nil {
		record.Fields = map[string]interface{}{}
	}
	if record.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return record, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return portfolio.ErrRecordNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
