package install

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"leadboard/internal/config"
	"leadboard/internal/store"
)

// Config holds everything needed to scaffold a leadboard deployment.
type Config struct {
	// Dir receives leadboard.yaml, .env and leadboard.service.
	Dir string

	Host string
	Port int

	// Backend is postgrest, postgres or sqlite.
	Backend     string
	SupabaseURL string
	SQLitePath  string

	// Service user and binary written into the systemd unit.
	ServiceUser string
	Binary      string

	// InstallService copies the unit into UnitDir and enables it.
	InstallService bool
	UnitDir        string

	// Force overwrites existing files.
	Force bool
}

// NewConfig creates a new config with defaults
func NewConfig() *Config {
	return &Config{
		Dir:         ".",
		Host:        config.DefaultHost,
		Port:        config.DefaultPort,
		ServiceUser: "leadboard",
		Binary:      "/usr/local/bin/leadboard",
		UnitDir:     "/etc/systemd/system",
	}
}

// FillDerivedValues infers the backend and the SQLite path.
func (c *Config) FillDerivedValues() {
	if c.Backend == "" {
		if c.SupabaseURL != "" {
			c.Backend = store.KindPostgREST
		} else {
			c.Backend = store.KindSQLite
		}
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.Dir, "leadboard.db")
	}
}

// Validate checks the values needed to render the files.
func (c *Config) Validate() error {
	var errs []string

	if c.Dir == "" {
		errs = append(errs, "directory is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port))
	}
	switch c.Backend {
	case store.KindPostgREST:
		if u, err := url.Parse(c.SupabaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "postgrest backend needs an absolute Supabase URL")
		}
	case store.KindPostgres, store.KindSQLite:
	default:
		errs = append(errs, fmt.Sprintf("unknown backend '%s'", c.Backend))
	}
	if c.InstallService && c.ServiceUser == "" {
		errs = append(errs, "service user is required to install the service")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid init options:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ConfigPath is where leadboard.yaml is written.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Dir, config.DefaultFileName)
}

// EnvPath is where the .env file is written.
func (c *Config) EnvPath() string {
	return filepath.Join(c.Dir, ".env")
}

// UnitPath is where the scaffolded systemd unit is written.
func (c *Config) UnitPath() string {
	return filepath.Join(c.Dir, serviceName+".service")
}
