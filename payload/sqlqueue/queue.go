// Package sqlqueue stores payload records in a PostgreSQL table so unsent
// payloads survive process restarts. FIFO order follows a BIGSERIAL column.
package sqlqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	delivery "github.com/JohnPlummer/jp-go-delivery"
	"github.com/JohnPlummer/jp-go-delivery/payload"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "payloads"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var columns = []string{"id", "type", "method", "path", "content_type", "data", "created_at"}

// Queue implements payload.Queue on a SQL table.
type Queue struct {
	db      *sql.DB
	table   string
	builder squirrel.StatementBuilderType
}

var _ payload.Queue = (*Queue)(nil)

// New wraps an open database. table must be a plain SQL identifier; an empty
// table selects DefaultTable.
func New(db *sql.DB, table string) (*Queue, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Queue{
		db:      db,
		table:   table,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Open connects to PostgreSQL using the pgx driver.
func Open(ctx context.Context, dsn, table string) (*Queue, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, table)
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// EnsureSchema creates the queue table if it does not exist.
func (q *Queue) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	type         TEXT NOT NULL,
	method       TEXT NOT NULL,
	path         TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data         BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
)`, q.table)
	if _, err := q.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", q.table, err)
	}
	return nil
}

// Enqueue implements payload.Queue.
func (q *Queue) Enqueue(ctx context.Context, record *payload.Record) error {
	// A nil slice would bind as NULL.
	data := record.Data
	if data == nil {
		data = []byte{}
	}
	query, args, err := q.builder.
		Insert(q.table).
		Columns(columns...).
		Values(record.ID, record.Type, string(record.Method), record.Path, record.ContentType, data, record.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("enqueue payload %s: %w", record.ID, err)
	}
	return nil
}

// PeekOldest implements payload.Queue.
func (q *Queue) PeekOldest(ctx context.Context) (*payload.Record, error) {
	query, args, err := q.builder.
		Select(columns...).
		From(q.table).
		OrderBy("seq ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var (
		record payload.Record
		method string
	)
	err = q.db.QueryRowContext(ctx, query, args...).Scan(
		&record.ID, &record.Type, &method, &record.Path, &record.ContentType, &record.Data, &record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek oldest payload: %w", err)
	}
	record.Method = delivery.Method(method)
	return &record, nil
}

// Delete implements payload.Queue.
func (q *Queue) Delete(ctx context.Context, record *payload.Record) error {
	query, args, err := q.builder.
		Delete(q.table).
		Where(squirrel.Eq{"id": record.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete payload %s: %w", record.ID, err)
	}
	return nil
}

// Len returns the number of queued records.
func (q *Queue) Len(ctx context.Context) (int, error) {
	query, args, err := q.builder.Select("COUNT(*)").From(q.table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payloads: %w", err)
	}
	return n, nil
}
