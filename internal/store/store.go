// Package store is the query interface to the backend that owns CRM records.
//
// Every operation is a single statement against one table: select with
// equality filters, ordering and a limit; insert one record; patch one
// record by identity; delete one record by identity. Three backends
// implement it:
//   - PostgREST: a Supabase project reached over its REST API
//   - Postgres: a direct database connection
//   - SQLite: a local document store for development and tests
package store

import (
	"context"
	"errors"
	"fmt"

	"leadboard/internal/resource"
	"leadboard/internal/security"
)

// Store is the backend query interface.
type Store interface {
	Select(ctx context.Context, table string, q Query) ([]resource.Record, error)
	Insert(ctx context.Context, table string, rec resource.Record) (resource.Record, error)
	// Update merges patch into the record with the given id and returns the
	// result. Returns ErrNotFound when no record matched.
	Update(ctx context.Context, table, id string, patch resource.Record) (resource.Record, error)
	// Delete removes the record with the given id. Returns ErrNotFound when
	// no record matched.
	Delete(ctx context.Context, table, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Filter is an equality condition on one field.
type Filter struct {
	Field string
	Value string
}

// Order sorts results by one field.
type Order struct {
	Field string
	Desc  bool
}

// Query selects records of a table. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

// Eq returns a copy of q with an extra equality filter.
func (q Query) Eq(field, value string) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Validate checks every field name used by the query.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if err := security.ValidateFieldName(f.Field); err != nil {
			return err
		}
	}
	for _, o := range q.Order {
		if err := security.ValidateFieldName(o.Field); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", q.Limit)
	}
	return nil
}

// SelectOne fetches the record with the given id, returning ErrNotFound
// when the query matched no rows.
func SelectOne(ctx context.Context, s Store, table, id string) (resource.Record, error) {
	rows, err := s.Select(ctx, table, Query{Limit: 1}.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// validateRecord checks the field names of a record bound for SQL.
func validateRecord(rec resource.Record) error {
	for name := range rec {
		if err := security.ValidateFieldName(name); err != nil {
			return err
		}
	}
	return nil
}

// ErrNotFound is returned when an identity matched no record.
var ErrNotFound = errors.New("no rows matched")
