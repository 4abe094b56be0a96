package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"leadboard/pkg/cmdutil"
)

// installService copies the unit into the systemd directory, then enables
// and starts it. An existing unit is restarted instead.
func (i *Installer) installService(ctx context.Context) error {
	c := i.config
	if !c.InstallService {
		i.out.skip("Installing systemd service")
		return nil
	}

	if info, err := os.Stat(c.UnitDir); err != nil || !info.IsDir() {
		i.out.fail("Installing systemd service")
		return fmt.Errorf("systemd unit directory %s not found", c.UnitDir)
	}

	servicePath := filepath.Join(c.UnitDir, serviceName+".service")
	_, statErr := os.Stat(servicePath)
	existed := statErr == nil

	content, err := i.renderUnit()
	if err != nil {
		return err
	}
	if err := i.writeFile(servicePath, content, 0644); err != nil {
		return err
	}

	commands := [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", "--now", serviceName},
	}
	if existed {
		commands = append(commands, []string{"systemctl", "restart", serviceName})
	}

	for _, parts := range commands {
		desc := "Running " + cmdutil.FormatCommand(parts)
		if out, err := i.run(ctx, parts); err != nil {
			i.out.fail(desc)
			if msg := strings.TrimSpace(string(out)); msg != "" {
				fmt.Fprintln(i.out.out, msg)
			}
			fmt.Fprintf(i.out.out, "Check logs with: journalctl -u %s -n 50\n", serviceName)
			return err
		}
		i.out.ok(desc)
	}

	return nil
}
