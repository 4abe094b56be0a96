package install

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"leadboard/internal/config"
	"leadboard/internal/store"
)

type recordingRunner struct {
	calls  []string
	failOn string
}

func (r *recordingRunner) run(ctx context.Context, parts []string) ([]byte, error) {
	cmd := strings.Join(parts, " ")
	r.calls = append(r.calls, cmd)
	if r.failOn != "" && strings.Contains(cmd, r.failOn) {
		return []byte("unit failed"), errors.New("exit status 1")
	}
	return nil, nil
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	c := NewConfig()
	c.Dir = filepath.Join(t.TempDir(), "leadboard")
	c.Binary = "/opt/leadboard/leadboard"
	return c
}

func TestInstaller_WritesFiles(t *testing.T) {
	c := testConfig(t)
	var out bytes.Buffer

	if err := New(c, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v\n%s", err, out.String())
	}

	if c.Backend != store.KindSQLite {
		t.Errorf("Expected sqlite backend without a Supabase URL, got %s", c.Backend)
	}

	perms := map[string]os.FileMode{
		c.ConfigPath(): 0640,
		c.EnvPath():    0600,
		c.UnitPath():   0644,
	}
	for path, want := range perms {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Expected %s to exist: %v", path, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s: mode %04o, want %04o", path, got, want)
		}
	}

	cfg, err := config.Load(c.ConfigPath())
	if err != nil {
		t.Fatalf("Written config does not load: %v", err)
	}
	if cfg.Backend.Path != filepath.Join(c.Dir, "leadboard.db") {
		t.Errorf("Unexpected SQLite path %q", cfg.Backend.Path)
	}

	unit, _ := os.ReadFile(c.UnitPath())
	if !strings.Contains(string(unit), "ExecStart=/opt/leadboard/leadboard serve --config "+c.ConfigPath()) {
		t.Errorf("Unit has unexpected ExecStart:\n%s", unit)
	}

	if !strings.Contains(out.String(), "Next Steps") {
		t.Error("Expected a summary")
	}
}

func TestInstaller_KeepsExistingFiles(t *testing.T) {
	c := testConfig(t)
	if err := New(c, &bytes.Buffer{}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	edited := "SUPABASE_SERVICE_ROLE_KEY=filled-in\n"
	if err := os.WriteFile(c.EnvPath(), []byte(edited), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := New(c, &out).Run(context.Background()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if got, _ := os.ReadFile(c.EnvPath()); string(got) != edited {
		t.Errorf("Existing .env was overwritten: %q", got)
	}
	if !strings.Contains(out.String(), "[SKIP]") {
		t.Errorf("Expected skipped files in output:\n%s", out.String())
	}

	c.Force = true
	if err := New(c, &bytes.Buffer{}).Run(context.Background()); err != nil {
		t.Fatalf("forced Run() error = %v", err)
	}
	if got, _ := os.ReadFile(c.EnvPath()); string(got) == edited {
		t.Error("Force should overwrite .env")
	}
}

func TestInstaller_PostgRESTBackend(t *testing.T) {
	c := testConfig(t)
	c.SupabaseURL = "https://abc.supabase.co"

	if err := New(c, &bytes.Buffer{}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if c.Backend != store.KindPostgREST {
		t.Errorf("Expected postgrest backend, got %s", c.Backend)
	}

	env, _ := os.ReadFile(c.EnvPath())
	if !strings.Contains(string(env), "SUPABASE_URL=https://abc.supabase.co") {
		t.Errorf("Unexpected .env:\n%s", env)
	}
}

func TestInstaller_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"unknown backend", func(c *Config) { c.Backend = "mysql" }},
		{"postgrest without url", func(c *Config) { c.Backend = store.KindPostgREST }},
		{"service without user", func(c *Config) { c.InstallService = true; c.ServiceUser = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			tt.modify(c)
			if err := New(c, &bytes.Buffer{}).Run(context.Background()); err == nil {
				t.Error("Run() should fail")
			}
			if _, err := os.Stat(c.Dir); err == nil {
				t.Error("Nothing should be written for invalid options")
			}
		})
	}
}

func TestInstaller_InstallService(t *testing.T) {
	c := testConfig(t)
	c.InstallService = true
	c.UnitDir = t.TempDir()
	runner := &recordingRunner{}

	if err := New(c, &bytes.Buffer{}).WithRunner(runner.run).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(c.UnitDir, "leadboard.service")); err != nil {
		t.Errorf("Unit not installed: %v", err)
	}
	want := []string{"systemctl daemon-reload", "systemctl enable --now leadboard"}
	if strings.Join(runner.calls, "|") != strings.Join(want, "|") {
		t.Errorf("Commands = %v, want %v", runner.calls, want)
	}

	runner.calls = nil
	if err := New(c, &bytes.Buffer{}).WithRunner(runner.run).Run(context.Background()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if last := runner.calls[len(runner.calls)-1]; last != "systemctl restart leadboard" {
		t.Errorf("Existing unit should be restarted, got %v", runner.calls)
	}
}

func TestInstaller_InstallServiceFailure(t *testing.T) {
	c := testConfig(t)
	c.InstallService = true
	c.UnitDir = t.TempDir()
	runner := &recordingRunner{failOn: "enable"}
	var out bytes.Buffer

	err := New(c, &out).WithRunner(runner.run).Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when systemctl fails")
	}
	if !strings.Contains(out.String(), "unit failed") || !strings.Contains(out.String(), "journalctl -u leadboard") {
		t.Errorf("Expected command output and log hint:\n%s", out.String())
	}
}

func TestInstaller_MissingUnitDir(t *testing.T) {
	c := testConfig(t)
	c.InstallService = true
	c.UnitDir = filepath.Join(t.TempDir(), "nope")

	if err := New(c, &bytes.Buffer{}).WithRunner((&recordingRunner{}).run).Run(context.Background()); err == nil {
		t.Error("Run() should fail without a unit directory")
	}
}

func TestPromptValues(t *testing.T) {
	c := NewConfig()
	c.InstallService = true
	input := "postgrest\nhttps://abc.supabase.co\n0.0.0.0\n9000\n\n"

	promptValues(c, bufio.NewReader(strings.NewReader(input)), &bytes.Buffer{})

	if c.Backend != "postgrest" || c.SupabaseURL != "https://abc.supabase.co" {
		t.Errorf("Unexpected backend values: %s %s", c.Backend, c.SupabaseURL)
	}
	if c.Host != "0.0.0.0" || c.Port != 9000 {
		t.Errorf("Unexpected listen values: %s:%d", c.Host, c.Port)
	}
	if c.ServiceUser != "leadboard" {
		t.Errorf("Empty answer should keep the default user, got %q", c.ServiceUser)
	}
}
