package main

import (
	"fmt"

	"leadboard/internal/security"

	"github.com/spf13/cobra"
)

var checkURLCmd = &cobra.Command{
	Use:     "check-url URL...",
	Short:   "Check whether webhook targets would be relayed",
	GroupID: groupServer,
	Long: `Apply the webhook relay's target rules to each URL and report whether it
would be forwarded. The allowlist and blocklist come from the configuration.

Example:
  leadboard check-url https://hooks.zapier.com/hooks/catch/1/abc http://localhost/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckURL,
}

func init() {
	addConfigFlags(checkURLCmd)
}

func runCheckURL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	guard := security.NewTargetGuard(cfg.Proxy.AllowedDomains, cfg.Proxy.BlockedHosts)
	out := cmd.OutOrStdout()

	refused := 0
	for _, raw := range args {
		if _, err := guard.Check(raw); err != nil {
			refused++
			fmt.Fprintf(out, "REFUSED  %s (%s)\n", raw, err)
			continue
		}
		fmt.Fprintf(out, "ALLOWED  %s\n", raw)
	}

	if refused > 0 {
		return fmt.Errorf("%d of %d targets refused", refused, len(args))
	}
	return nil
}
