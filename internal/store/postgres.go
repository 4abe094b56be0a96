package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"leadboard/internal/resource"
	"leadboard/internal/security"
)

//go:embed schema.sql
var postgresSchema string

// Postgres reaches the CRM tables over a direct database connection. Rows
// come back as row_to_json documents so any column set passes through.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to the database at dsn.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the CRM tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping checks the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Select returns the rows of table matching q.
func (p *Postgres) Select(ctx context.Context, table string, q Query) ([]resource.Record, error) {
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, newQueryError("invalid_query", err.Error(), err)
	}
	return p.documents(ctx, query, args...)
}

// Insert adds one row and returns it as stored.
func (p *Postgres) Insert(ctx context.Context, table string, rec resource.Record) (resource.Record, error) {
	query, args, err := buildInsert(table, rec)
	if err != nil {
		return nil, newQueryError("invalid_record", err.Error(), err)
	}
	rows, err := p.documents(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Update sets the patch columns on the row with id.
func (p *Postgres) Update(ctx context.Context, table, id string, patch resource.Record) (resource.Record, error) {
	if len(patch) == 0 {
		return SelectOne(ctx, p, table, id)
	}
	query, args, err := buildUpdate(table, id, patch)
	if err != nil {
		return nil, newQueryError("invalid_record", err.Error(), err)
	}
	rows, err := p.documents(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Delete removes the row with id.
func (p *Postgres) Delete(ctx context.Context, table, id string) error {
	if err := security.ValidateFieldName(table); err != nil {
		return newQueryError("invalid_query", err.Error(), err)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id::text = ?`, pq.QuoteIdentifier(table))

	result, err := p.db.ExecContext(ctx, p.db.Rebind(query), id)
	if err != nil {
		return fromPQ(err)
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

// documents runs a query whose single column is a JSON document per row.
func (p *Postgres) documents(ctx context.Context, query string, args ...any) ([]resource.Record, error) {
	var docs []string
	if err := p.db.SelectContext(ctx, &docs, p.db.Rebind(query), args...); err != nil {
		return nil, fromPQ(err)
	}

	records := make([]resource.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func buildSelect(table string, q Query) (string, []any, error) {
	if err := security.ValidateFieldName(table); err != nil {
		return "", nil, err
	}
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT row_to_json(t)::text FROM %s AS t", pq.QuoteIdentifier(table))

	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "t.%s::text = ?", pq.QuoteIdentifier(f.Field))
		args = append(args, f.Value)
	}

	for i, o := range q.Order {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString("t." + pq.QuoteIdentifier(o.Field))
		if o.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	return sb.String(), args, nil
}

func buildInsert(table string, rec resource.Record) (string, []any, error) {
	if err := security.ValidateFieldName(table); err != nil {
		return "", nil, err
	}
	if err := validateRecord(rec); err != nil {
		return "", nil, err
	}

	quoted := pq.QuoteIdentifier(table)
	if len(rec) == 0 {
		return fmt.Sprintf("INSERT INTO %s AS t DEFAULT VALUES RETURNING row_to_json(t)::text", quoted), nil, nil
	}

	fields := rec.Fields()
	columns := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, name := range fields {
		columns[i] = pq.QuoteIdentifier(name)
		marks[i] = "?"
		v, err := columnValue(rec[name])
		if err != nil {
			return "", nil, fmt.Errorf("field '%s': %w", name, err)
		}
		args[i] = v
	}

	query := fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) RETURNING row_to_json(t)::text",
		quoted, strings.Join(columns, ", "), strings.Join(marks, ", "))
	return query, args, nil
}

func buildUpdate(table, id string, patch resource.Record) (string, []any, error) {
	if err := security.ValidateFieldName(table); err != nil {
		return "", nil, err
	}
	if err := validateRecord(patch); err != nil {
		return "", nil, err
	}

	fields := patch.Fields()
	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, name := range fields {
		sets[i] = pq.QuoteIdentifier(name) + " = ?"
		v, err := columnValue(patch[name])
		if err != nil {
			return "", nil, fmt.Errorf("field '%s': %w", name, err)
		}
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s AS t SET %s WHERE t.id::text = ? RETURNING row_to_json(t)::text",
		pq.QuoteIdentifier(table), strings.Join(sets, ", "))
	return query, args, nil
}

// columnValue converts a decoded JSON value into a driver argument. Lists
// and objects are sent as JSON text and land in json/jsonb columns.
func columnValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64:
		return val, nil
	case json.Number:
		return val.String(), nil
	case []any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// fromPQ converts driver errors into QueryErrors carrying the SQLSTATE.
func fromPQ(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &QueryError{
			Code:    string(pqErr.Code),
			Message: pqErr.Message,
			Details: pqErr.Detail,
			Hint:    pqErr.Hint,
			Err:     err,
		}
	}
	return newQueryError("", err.Error(), err)
}
