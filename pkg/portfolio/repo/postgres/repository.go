package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements portfolio.Repository and portfolio.ActivityStore using PostgreSQL
type Repository struct {
	db DBTX
}

var (
	_ portfolio.Repository    = (*Repository)(nil)
	_ portfolio.ActivityStore = (*Repository)(nil)
)

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Connect opens a pool for databaseURL. A non-empty schema is set as the
// search_path of every connection.
func Connect(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// ApplySchema creates the tables the repository needs when they are missing.
func (r *Repository) ApplySchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return r.handlePostgresError("apply schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("record already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return portfolio.ErrRecordNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// writeError classifies a failed insert or update. Errors the server did
// not report, and that pgx cannot prove happened before the statement was
// sent, leave the outcome unknown.
func (r *Repository) writeError(operation string, err error) error {
	werr := r.handlePostgresError(operation, err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || pgconn.SafeToRetry(err) {
		return werr
	}
	return fmt.Errorf("%w: %w", portfolio.ErrWriteOutcomeUnknown, werr)
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, record *portfolio.Record) error {
	data, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	query := `
		INSERT INTO content_records (table_name, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = r.db.Exec(ctx, query, record.Table, record.ID, data, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return r.writeError("create record", err)
	}
	return nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *portfolio.Record) error {
	data, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	query := `
		UPDATE content_records SET data = $3, updated_at = $4
		WHERE table_name = $1 AND id = $2`

	tag, err := r.db.Exec(ctx, query, record.Table, record.ID, data, record.UpdatedAt)
	if err != nil {
		return r.writeError("update record", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, table string, id uuid.UUID) (*portfolio.Record, error) {
	query := `
		SELECT id, data, created_at, updated_at
		FROM content_records WHERE table_name = $1 AND id = $2`

	record, err := scanRecord(table, r.db.QueryRow(ctx, query, table, id))
	if err != nil {
		return nil, r.handlePostgresError("get record", err)
	}
	return record, nil
}

func (r *Repository) ListRecords(ctx context.Context, table string) ([]*portfolio.Record, error) {
	query := `
		SELECT id, data, created_at, updated_at
		FROM content_records WHERE table_name = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, table)
	if err != nil {
		return nil, r.handlePostgresError("list records", err)
	}
	defer rows.Close()

	var records []*portfolio.Record
	for rows.Next() {
		record, err := scanRecord(table, rows)
		if err != nil {
			return nil, r.handlePostgresError("scan record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list records", err)
	}
	return records, nil
}

func (r *Repository) DeleteRecord(ctx context.Context, table string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_records WHERE table_name = $1 AND id = $2`, table, id)
	if err != nil {
		return r.handlePostgresError("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return portfolio.ErrRecordNotFound
	}
	return nil
}

// Activity operations

func (r *Repository) InsertActivity(ctx context.Context, entry *portfolio.ActivityLogEntry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("failed to encode details: %w", err)
		}
	}
	query := `
		INSERT INTO admin_activity_log (action_type, description, user_identifier, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, entry.ActionType, entry.Description, entry.UserIdentifier, details, entry.OccurredAt)
	if err != nil {
		return r.handlePostgresError("insert activity", err)
	}
	return nil
}

func (r *Repository) ListActivity(ctx context.Context, limit int) ([]*portfolio.ActivityLogEntry, error) {
	query := `
		SELECT action_type, description, user_identifier, details, created_at
		FROM admin_activity_log ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list activity", err)
	}
	defer rows.Close()

	var entries []*portfolio.ActivityLogEntry
	for rows.Next() {
		var (
			e       portfolio.ActivityLogEntry
			details []byte
		)
		if err := rows.Scan(&e.ActionType, &e.Description, &e.UserIdentifier, &details, &e.OccurredAt); err != nil {
			return nil, r.handlePostgresError("scan activity", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details: %w", err)
			}
		}
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list activity", err)
	}
	return entries, nil
}

func scanRecord(table string, row pgx.Row) (*portfolio.Record, error) {
	var (
		record    = &portfolio.Record{Table: table}
		data      []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&record.ID, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	if record.Fields == nil {
		record.Fields = map[string]interface{}{}
	}
	record.CreatedAt = createdAt.UTC()
	record.UpdatedAt = updatedAt.UTC()
	return record, nil
}
