package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"leadboard/internal/store"
)

const (
	testServiceKey = "svc-Jq7Lr2Vb9Xm4Tn8Ws1Kd6Hf3Pz5Ac0Ye"
	testAnonKey    = "anon-Gu5Rk8Mw2Qs7Lt4Vn9Bx1Dz6Hc3Fj0Pa"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leadboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func containsError(errors []string, substr string) bool {
	for _, e := range errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr() != "127.0.0.1:8080" {
		t.Errorf("Expected default address, got %s", cfg.Addr())
	}
	if cfg.Backend.Kind != store.KindSQLite {
		t.Errorf("Expected sqlite backend by default, got %s", cfg.Backend.Kind)
	}
	if cfg.Backend.Path != DefaultSQLitePath {
		t.Errorf("Expected default sqlite path, got %s", cfg.Backend.Path)
	}
	if cfg.ProxyTimeout() != 30*time.Second {
		t.Errorf("Expected 30s proxy timeout, got %s", cfg.ProxyTimeout())
	}
	if !cfg.AuthRequired() {
		t.Error("Auth should be required by default")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
listen:
  host: 0.0.0.0
  port: 9000
backend:
  url: https://xyz.supabase.co
  service_role_key: `+testServiceKey+`
  anon_key: `+testAnonKey+`
auth:
  required: false
proxy:
  allowed_domains: [hooks.zapier.com, example.org]
  timeout_seconds: 5
rate_limit:
  proxy_requests_per_minute: 30
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr() != "0.0.0.0:9000" {
		t.Errorf("Unexpected address %s", cfg.Addr())
	}
	if cfg.Backend.Kind != store.KindPostgREST {
		t.Errorf("Expected postgrest inferred from url, got %s", cfg.Backend.Kind)
	}
	if cfg.AuthRequired() {
		t.Error("Expected auth.required false")
	}
	if len(cfg.Proxy.AllowedDomains) != 2 {
		t.Errorf("Expected 2 allowed domains, got %v", cfg.Proxy.AllowedDomains)
	}
	if cfg.ProxyTimeout() != 5*time.Second {
		t.Errorf("Expected 5s proxy timeout, got %s", cfg.ProxyTimeout())
	}
	if cfg.RateLimit.ProxyRequestsPerMinute != 30 {
		t.Errorf("Expected proxy rate limit 30, got %d", cfg.RateLimit.ProxyRequestsPerMinute)
	}
	if cfg.File != path {
		t.Errorf("Expected File %s, got %s", path, cfg.File)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Expected valid config, got %v", errs)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected read error")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
listen:
  port: 9000
backend:
  kind: sqlite
  path: /tmp/ignored.db
`)

	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", testServiceKey)
	t.Setenv("LEADBOARD_BACKEND", "postgrest")
	t.Setenv("LEADBOARD_PORT", "7000")
	t.Setenv("LEADBOARD_ALLOWED_DOMAINS", "zapier.com, ,make.com")
	t.Setenv("LEADBOARD_AUTH_REQUIRED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.Port != 7000 {
		t.Errorf("Expected env port 7000, got %d", cfg.Listen.Port)
	}
	if cfg.Backend.Kind != store.KindPostgREST || cfg.Backend.URL != "https://abc.supabase.co" {
		t.Errorf("Unexpected backend %+v", cfg.Backend)
	}
	if strings.Join(cfg.Proxy.AllowedDomains, ",") != "zapier.com,make.com" {
		t.Errorf("Unexpected allowed domains %v", cfg.Proxy.AllowedDomains)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Expected valid config, got %v", errs)
	}
}

func TestLoad_BadEnvironmentValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"LEADBOARD_PORT", "eighty"},
		{"LEADBOARD_AUTH_REQUIRED", "maybe"},
		{"LEADBOARD_PROXY_TIMEOUT", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "SUPABASE_ANON_KEY=" + testAnonKey + "\nLEADBOARD_PORT=6123\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	// Registered through t.Setenv so the values are restored afterwards.
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("LEADBOARD_PORT", "6000")
	os.Unsetenv("SUPABASE_ANON_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	if got := os.Getenv("SUPABASE_ANON_KEY"); got != testAnonKey {
		t.Errorf("Expected anon key loaded from .env, got %q", got)
	}
	if got := os.Getenv("LEADBOARD_PORT"); got != "6000" {
		t.Errorf("Existing variables should win over .env, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Missing .env should not be an error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Listen.Port = 70000 }, "listen.port"},
		{"postgrest without url", func(c *Config) {
			c.Backend.Kind = store.KindPostgREST
			c.Backend.ServiceRoleKey = testServiceKey
		}, "backend.url is required"},
		{"postgrest bad url", func(c *Config) {
			c.Backend.Kind = store.KindPostgREST
			c.Backend.URL = "xyz.supabase.co"
			c.Backend.ServiceRoleKey = testServiceKey
		}, "backend.url must be"},
		{"postgrest without key", func(c *Config) {
			c.Backend.Kind = store.KindPostgREST
			c.Backend.URL = "https://xyz.supabase.co"
		}, "backend.service_role_key is required"},
		{"postgres without dsn", func(c *Config) { c.Backend.Kind = store.KindPostgres }, "backend.dsn"},
		{"unknown kind", func(c *Config) { c.Backend.Kind = "mongo" }, "backend.kind"},
		{"sqlite traversal", func(c *Config) { c.Backend.Path = "../outside.db" }, "backend.path"},
		{"auth without keys", func(c *Config) {
			c.Backend.ServiceRoleKey = ""
			c.Backend.AnonKey = ""
		}, "auth.required"},
		{"negative proxy timeout", func(c *Config) { c.Proxy.TimeoutSeconds = -1 }, "proxy.timeout_seconds"},
		{"negative rate limit", func(c *Config) { c.RateLimit.RequestsPerMinute = -5 }, "rate_limit.requests_per_minute"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Backend.Kind = store.KindSQLite
			cfg.Backend.Path = "/var/lib/leadboard/leadboard.db"
			cfg.Backend.AnonKey = testAnonKey
			tt.mutate(cfg)

			errs := cfg.Validate()
			if !containsError(errs, tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	path := writeConfig(t, "backend:\n  service_role_key: changeme\n")
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	warnings := cfg.Warnings()
	if !containsError(warnings, "backend.service_role_key") {
		t.Errorf("Expected weak key warning, got %v", warnings)
	}
	if !containsError(warnings, "world-readable") {
		t.Errorf("Expected permissions warning, got %v", warnings)
	}
}

func TestString_MasksKeys(t *testing.T) {
	cfg := Default()
	cfg.Backend.ServiceRoleKey = testServiceKey
	cfg.Backend.AnonKey = testAnonKey

	s := cfg.String()
	if strings.Contains(s, testServiceKey) || strings.Contains(s, testAnonKey) {
		t.Errorf("String() leaked a key: %s", s)
	}
	if !strings.Contains(s, "svc-****") {
		t.Errorf("Expected masked key prefix, got %s", s)
	}
}
