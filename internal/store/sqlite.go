package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"leadboard/internal/resource"
	"leadboard/internal/security"
)

// createdAtLayout has a fixed-width fraction so stored timestamps sort as text.
const createdAtLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLite keeps records as JSON documents keyed by (collection, id).
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file and its schema.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Select returns the records of table matching q.
func (s *SQLite) Select(ctx context.Context, table string, q Query) ([]resource.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, newQueryError("invalid_query", err.Error(), err)
	}

	var sb strings.Builder
	args := []any{table}
	sb.WriteString("SELECT body FROM records WHERE collection = ?")

	for _, f := range q.Filters {
		if f.Field == "id" {
			sb.WriteString(" AND id = ?")
		} else {
			// Field names are validated identifiers, safe to inline in the JSON path
			fmt.Fprintf(&sb, " AND CAST(json_extract(body, '$.%s') AS TEXT) = ?", f.Field)
		}
		args = append(args, f.Value)
	}

	sb.WriteString(" ORDER BY ")
	for _, o := range q.Order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, "json_extract(body, '$.%s') %s, ", o.Field, dir)
	}
	sb.WriteString("rowid ASC")

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, newQueryError("", fmt.Sprintf("failed to query %s: %v", table, err), err)
	}
	defer rows.Close()

	records := []resource.Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// Insert stores rec, assigning a UUID identity and created_at when absent.
func (s *SQLite) Insert(ctx context.Context, table string, rec resource.Record) (resource.Record, error) {
	if err := validateRecord(rec); err != nil {
		return nil, newQueryError("invalid_record", err.Error(), err)
	}

	out := rec.Clone()
	id := out.ID()
	if id == "" {
		id = uuid.NewString()
		out["id"] = id
	} else if err := security.ValidateRecordID(id); err != nil {
		return nil, newQueryError("invalid_record", err.Error(), err)
	}
	if _, ok := out["created_at"]; !ok {
		out["created_at"] = time.Now().UTC().Format(createdAtLayout)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, body) VALUES (?, ?, ?)
	`, table, id, string(body))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &QueryError{
				Code:    "23505",
				Message: fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", table),
				Details: fmt.Sprintf("Key (id)=(%s) already exists.", id),
				Err:     err,
			}
		}
		return nil, newQueryError("", fmt.Sprintf("failed to insert into %s: %v", table, err), err)
	}

	return out, nil
}

// Update merges patch into the stored document.
func (s *SQLite) Update(ctx context.Context, table, id string, patch resource.Record) (resource.Record, error) {
	if err := validateRecord(patch); err != nil {
		return nil, newQueryError("invalid_record", err.Error(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx, `
		SELECT body FROM records WHERE collection = ? AND id = ?
	`, table, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newQueryError("", fmt.Sprintf("failed to load %s record: %v", table, err), err)
	}

	current, err := decodeDocument(body)
	if err != nil {
		return nil, err
	}

	merged := current.Merge(patch)
	merged["id"] = current["id"]

	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET body = ? WHERE collection = ? AND id = ?
	`, string(encoded), table, id); err != nil {
		return nil, newQueryError("", fmt.Sprintf("failed to update %s record: %v", table, err), err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	return merged, nil
}

// Delete removes one document.
func (s *SQLite) Delete(ctx context.Context, table, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE collection = ? AND id = ?
	`, table, id)
	if err != nil {
		return newQueryError("", fmt.Sprintf("failed to delete %s record: %v", table, err), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeDocument(body string) (resource.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var rec resource.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode stored record: %w", err)
	}
	return rec, nil
}
