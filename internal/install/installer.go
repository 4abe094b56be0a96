package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"leadboard/internal/security"
	"leadboard/pkg/cmdutil"
	"leadboard/pkg/templates"
)

const (
	serviceName    = "leadboard"
	commandTimeout = 30 * time.Second
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, cmdParts []string) ([]byte, error)

func defaultRunner(ctx context.Context, cmdParts []string) ([]byte, error) {
	return cmdutil.RunWithTimeout(ctx, "", commandTimeout, cmdParts)
}

// Installer scaffolds the files for a leadboard deployment
type Installer struct {
	config *Config
	run    Runner
	out    progress
}

// New creates a new installer writing progress to out
func New(config *Config, out io.Writer) *Installer {
	return &Installer{
		config: config,
		run:    defaultRunner,
		out:    progress{out: out},
	}
}

// WithRunner replaces the command runner used for systemctl.
func (i *Installer) WithRunner(run Runner) *Installer {
	i.run = run
	return i
}

// Run writes the configuration files and optionally installs the service.
// Existing files are kept unless Force is set.
func (i *Installer) Run(ctx context.Context) error {
	c := i.config
	c.FillDerivedValues()
	if err := c.Validate(); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"creating directory", i.createDir},
		{"writing " + c.ConfigPath(), i.writeConfig},
		{"writing " + c.EnvPath(), i.writeEnv},
		{"writing " + c.UnitPath(), i.writeUnit},
		{"installing service", i.installService},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	i.printSummary()
	return nil
}

func (i *Installer) createDir(ctx context.Context) error {
	if err := security.CreateSecureDir(i.config.Dir, security.PermDirectory); err != nil {
		i.out.fail("Creating " + i.config.Dir)
		return err
	}
	i.out.ok("Creating " + i.config.Dir)
	return nil
}

func (i *Installer) writeConfig(ctx context.Context) error {
	c := i.config
	content, err := templates.RenderConfig(c.Host, c.Port, c.Backend, c.SQLitePath)
	if err != nil {
		return err
	}
	return i.writeFile(c.ConfigPath(), content, security.PermConfigFile)
}

func (i *Installer) writeEnv(ctx context.Context) error {
	content, err := templates.RenderDotEnv(i.config.SupabaseURL)
	if err != nil {
		return err
	}
	return i.writeFile(i.config.EnvPath(), content, security.PermSecretFile)
}

func (i *Installer) writeUnit(ctx context.Context) error {
	content, err := i.renderUnit()
	if err != nil {
		return err
	}
	return i.writeFile(i.config.UnitPath(), content, 0644)
}

func (i *Installer) renderUnit() (string, error) {
	c := i.config
	return templates.RenderSystemdService(c.ServiceUser, c.Dir, c.Binary, c.ConfigPath())
}

// writeFile writes content unless the file exists and Force is off.
func (i *Installer) writeFile(path, content string, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil && !i.config.Force {
		i.out.skip(path + " exists")
		return nil
	}

	if err := security.WriteSecureFile(path, []byte(content), perm); err != nil {
		i.out.fail("Writing " + path)
		return err
	}

	i.out.ok("Writing " + path)
	return nil
}

func (i *Installer) printSummary() {
	c := i.config
	w := i.out.out

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%sleadboard is configured%s\n", colorGreen, colorReset)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Config:   %s\n", c.ConfigPath())
	fmt.Fprintf(w, "  Secrets:  %s\n", c.EnvPath())
	fmt.Fprintf(w, "  Backend:  %s\n", c.Backend)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next Steps:")
	fmt.Fprintf(w, "  1. Fill in the keys in %s\n", c.EnvPath())
	fmt.Fprintf(w, "  2. Start: %s serve --config %s\n", c.Binary, c.ConfigPath())
	fmt.Fprintf(w, "  3. Check: curl http://%s:%d/health\n", c.Host, c.Port)
	if c.InstallService {
		fmt.Fprintf(w, "  Logs:     journalctl -u %s -f\n", serviceName)
	}
	fmt.Fprintln(w)
}
