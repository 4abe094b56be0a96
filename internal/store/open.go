package store

import (
	"fmt"
	"time"
)

// Backend kinds
const (
	KindPostgREST = "postgrest"
	KindPostgres  = "postgres"
	KindSQLite    = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Kind       string
	URL        string // PostgREST project URL
	ServiceKey string // PostgREST service-role key
	DSN        string // Postgres connection string
	Path       string // SQLite database file
	Timeout    time.Duration
}

// Open creates the backend described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Kind {
	case KindPostgREST:
		return NewPostgREST(opts.URL, opts.ServiceKey, opts.Timeout)
	case KindPostgres:
		return NewPostgres(opts.DSN)
	case KindSQLite:
		return NewSQLite(opts.Path)
	}
	return nil, fmt.Errorf("unknown backend kind '%s' (expected %s, %s or %s)",
		opts.Kind, KindPostgREST, KindPostgres, KindSQLite)
}
