// Package config builds the service configuration from an optional YAML
// file, a .env file and the process environment.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"leadboard/internal/security"
	"leadboard/internal/store"
)

const (
	// DefaultFileName is looked up in the default config locations.
	DefaultFileName = "leadboard.yaml"

	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8080
	DefaultBackendTimeout = 15
	DefaultProxyTimeout   = 30
	DefaultSQLitePath     = "./leadboard.db"
)

// Config is the complete service configuration. It is built once at
// startup and not modified afterwards.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Backend   BackendConfig   `yaml:"backend"`
	Auth      AuthConfig      `yaml:"auth"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`

	// File is the YAML file the config was read from, if any.
	File string `yaml:"-"`
}

type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BackendConfig selects the data store. Kind is inferred when empty:
// a URL means postgrest, a DSN means postgres, otherwise sqlite.
type BackendConfig struct {
	Kind           string `yaml:"kind"`
	URL            string `yaml:"url"`
	ServiceRoleKey string `yaml:"service_role_key"`
	AnonKey        string `yaml:"anon_key"`
	DSN            string `yaml:"dsn"`
	Path           string `yaml:"path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AuthConfig struct {
	// Required defaults to true when unset.
	Required *bool `yaml:"required"`
}

type ProxyConfig struct {
	AllowedDomains []string `yaml:"allowed_domains"`
	BlockedHosts   []string `yaml:"blocked_hosts"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	// AuditDB enables the forward audit log when set.
	AuditDB string `yaml:"audit_db"`
}

// RateLimitConfig holds per-IP limits; zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute      int `yaml:"requests_per_minute"`
	ProxyRequestsPerMinute int `yaml:"proxy_requests_per_minute"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Host: DefaultHost, Port: DefaultPort},
		Backend: BackendConfig{
			TimeoutSeconds: DefaultBackendTimeout,
		},
		Proxy: ProxyConfig{
			TimeoutSeconds: DefaultProxyTimeout,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadDotEnv loads variables from a .env file into the environment.
// Variables already set take precedence. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		cfg.File = path
	}

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	cfg.Backend.Kind = cfg.inferKind()
	if cfg.Backend.Kind == store.KindSQLite && cfg.Backend.Path == "" {
		cfg.Backend.Path = DefaultSQLitePath
	}

	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got '%s'", key, v)
		}
		*dst = n
		return nil
	}
	setList := func(key string, dst *[]string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = splitList(v)
		}
	}

	setString("SUPABASE_URL", &cfg.Backend.URL)
	setString("SUPABASE_SERVICE_ROLE_KEY", &cfg.Backend.ServiceRoleKey)
	setString("SUPABASE_ANON_KEY", &cfg.Backend.AnonKey)

	setString("LEADBOARD_HOST", &cfg.Listen.Host)
	setString("LEADBOARD_BACKEND", &cfg.Backend.Kind)
	setString("LEADBOARD_DATABASE_URL", &cfg.Backend.DSN)
	setString("LEADBOARD_SQLITE_PATH", &cfg.Backend.Path)
	setString("LEADBOARD_AUDIT_DB", &cfg.Proxy.AuditDB)
	setString("LEADBOARD_LOG_FILE", &cfg.Log.File)
	setString("LEADBOARD_LOG_LEVEL", &cfg.Log.Level)
	setList("LEADBOARD_ALLOWED_DOMAINS", &cfg.Proxy.AllowedDomains)
	setList("LEADBOARD_BLOCKED_HOSTS", &cfg.Proxy.BlockedHosts)

	ints := []struct {
		key string
		dst *int
	}{
		{"LEADBOARD_PORT", &cfg.Listen.Port},
		{"LEADBOARD_BACKEND_TIMEOUT", &cfg.Backend.TimeoutSeconds},
		{"LEADBOARD_PROXY_TIMEOUT", &cfg.Proxy.TimeoutSeconds},
		{"LEADBOARD_RATE_LIMIT", &cfg.RateLimit.RequestsPerMinute},
		{"LEADBOARD_PROXY_RATE_LIMIT", &cfg.RateLimit.ProxyRequestsPerMinute},
	}
	for _, i := range ints {
		if err := setInt(i.key, i.dst); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(getenv("LEADBOARD_AUTH_REQUIRED")); v != "" {
		required, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEADBOARD_AUTH_REQUIRED must be a boolean, got '%s'", v)
		}
		cfg.Auth.Required = &required
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) inferKind() string {
	if c.Backend.Kind != "" {
		return strings.ToLower(c.Backend.Kind)
	}
	switch {
	case c.Backend.URL != "":
		return store.KindPostgREST
	case c.Backend.DSN != "":
		return store.KindPostgres
	}
	return store.KindSQLite
}

// Validate returns every problem that prevents the service from starting.
func (c *Config) Validate() []string {
	var errors []string

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - listen.port must be between 1 and 65535, got %d", c.Listen.Port))
	}

	switch c.Backend.Kind {
	case store.KindPostgREST:
		if c.Backend.URL == "" {
			errors = append(errors, "  - backend.url is required for the postgrest backend (or set SUPABASE_URL)")
		} else if u, err := url.Parse(c.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("  - backend.url must be an http(s) URL, got '%s'", c.Backend.URL))
		}
		if c.Backend.ServiceRoleKey == "" {
			errors = append(errors, "  - backend.service_role_key is required for the postgrest backend (or set SUPABASE_SERVICE_ROLE_KEY)")
		}
	case store.KindPostgres:
		if c.Backend.DSN == "" {
			errors = append(errors, "  - backend.dsn is required for the postgres backend (or set LEADBOARD_DATABASE_URL)")
		}
	case store.KindSQLite:
		if _, err := security.SanitizePath(c.Backend.Path); err != nil {
			errors = append(errors, fmt.Sprintf("  - backend.path: %v", err))
		}
	default:
		errors = append(errors, fmt.Sprintf("  - backend.kind must be one of %s, %s, %s, got '%s'",
			store.KindPostgREST, store.KindPostgres, store.KindSQLite, c.Backend.Kind))
	}

	if c.AuthRequired() && c.Backend.ServiceRoleKey == "" && c.Backend.AnonKey == "" {
		errors = append(errors, "  - auth.required is set but no service_role_key or anon_key is configured")
	}

	if c.Backend.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Sprintf("  - backend.timeout_seconds must be a positive integer, got %d", c.Backend.TimeoutSeconds))
	}
	if c.Proxy.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Sprintf("  - proxy.timeout_seconds must be a positive integer, got %d", c.Proxy.TimeoutSeconds))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("  - rate_limit.requests_per_minute cannot be negative, got %d", c.RateLimit.RequestsPerMinute))
	}
	if c.RateLimit.ProxyRequestsPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("  - rate_limit.proxy_requests_per_minute cannot be negative, got %d", c.RateLimit.ProxyRequestsPerMinute))
	}

	if c.Proxy.AuditDB != "" {
		if _, err := security.SanitizePath(c.Proxy.AuditDB); err != nil {
			errors = append(errors, fmt.Sprintf("  - proxy.audit_db: %v", err))
		}
	}
	if c.Log.File != "" {
		if _, err := security.SanitizePath(c.Log.File); err != nil {
			errors = append(errors, fmt.Sprintf("  - log.file: %v", err))
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errors = append(errors, fmt.Sprintf("  - log.level: %v", err))
	}

	return errors
}

// Warnings returns problems worth logging that do not block startup.
func (c *Config) Warnings() []string {
	var warnings []string

	keys := []struct {
		name string
		key  string
	}{
		{"backend.service_role_key", c.Backend.ServiceRoleKey},
		{"backend.anon_key", c.Backend.AnonKey},
	}
	for _, k := range keys {
		if k.key == "" {
			continue
		}
		if err := security.CheckKey(k.key); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", k.name, err))
		}
	}

	if c.File != "" && c.Backend.ServiceRoleKey != "" {
		if err := security.ValidateSecurePermissions(c.File); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	if !c.AuthRequired() {
		warnings = append(warnings, "auth.required is false; every route is public")
	}

	return warnings
}

// AuthRequired reports whether non-public routes need a key.
func (c *Config) AuthRequired() bool {
	return c.Auth.Required == nil || *c.Auth.Required
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Host, c.Listen.Port)
}

func (c *Config) BackendTimeout() time.Duration {
	return seconds(c.Backend.TimeoutSeconds, DefaultBackendTimeout)
}

func (c *Config) ProxyTimeout() time.Duration {
	return seconds(c.Proxy.TimeoutSeconds, DefaultProxyTimeout)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// StoreOptions returns the options for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Kind:       c.Backend.Kind,
		URL:        c.Backend.URL,
		ServiceKey: c.Backend.ServiceRoleKey,
		DSN:        c.Backend.DSN,
		Path:       c.Backend.Path,
		Timeout:    c.BackendTimeout(),
	}
}

// LogLevel returns the configured slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level '%s'", s)
	}
	return level, nil
}

// String renders the config for logs with keys masked.
func (c *Config) String() string {
	return fmt.Sprintf("listen=%s backend=%s url=%s service_role_key=%s anon_key=%s auth_required=%t proxy_timeout=%s audit_db=%q",
		c.Addr(), c.Backend.Kind, c.Backend.URL,
		mask(c.Backend.ServiceRoleKey), mask(c.Backend.AnonKey),
		c.AuthRequired(), c.ProxyTimeout(), c.Proxy.AuditDB)
}

func mask(key string) string {
	if key == "" {
		return "(unset)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****"
}
