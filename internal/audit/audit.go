// Package audit keeps a SQLite log of webhook forwards.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"leadboard/internal/security"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 50

// Log records forwards in SQLite
type Log struct {
	db *sql.DB
}

// NewLog opens (and creates if needed) the audit database at dbPath.
func NewLog(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Log{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return l, nil
}

// Close closes the database connection
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS forwards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target_host TEXT NOT NULL,
			target_url TEXT NOT NULL,
			status_code INTEGER,
			success INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error_message TEXT,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = l.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_forwards_host_created
		ON forwards(target_host, created_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Record stores a forward attempt and returns its id. The query string of
// the target is dropped since automation URLs often carry tokens there.
func (l *Log) Record(ctx context.Context, f *Forward) (int64, error) {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := l.db.ExecContext(ctx, `
		INSERT INTO forwards
		(target_host, target_url, status_code, success, duration_ms, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		f.TargetHost,
		security.RedactURL(f.TargetURL),
		f.StatusCode,
		f.Success,
		f.DurationMS,
		f.ErrorMessage,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert forward record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// Recent returns the latest forwards, newest first. A non-empty host
// restricts the result to that target host.
func (l *Log) Recent(ctx context.Context, host string, limit int) ([]Forward, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `
		SELECT id, target_host, target_url, status_code, success, duration_ms, error_message, created_at
		FROM forwards`
	args := []any{}
	if host != "" {
		query += ` WHERE target_host = ?`
		args = append(args, host)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query forwards: %w", err)
	}
	defer rows.Close()

	forwards := []Forward{}
	for rows.Next() {
		f, err := scanForward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forward record: %w", err)
		}
		forwards = append(forwards, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return forwards, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...any) error
}

func scanForward(s scanner) (*Forward, error) {
	var f Forward
	var status sql.NullInt64
	var errMsg sql.NullString
	var createdAt string

	if err := s.Scan(
		&f.ID,
		&f.TargetHost,
		&f.TargetURL,
		&status,
		&f.Success,
		&f.DurationMS,
		&errMsg,
		&createdAt,
	); err != nil {
		return nil, err
	}

	if status.Valid {
		code := int(status.Int64)
		f.StatusCode = &code
	}
	if errMsg.Valid {
		f.ErrorMessage = &errMsg.String
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	f.CreatedAt = t

	return &f, nil
}
