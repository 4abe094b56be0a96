package main

import (
	"fmt"

	"leadboard/internal/install"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Write a starter configuration",
	GroupID: groupServer,
	Long: `Write leadboard.yaml, a .env file for the API keys and a systemd unit into
a directory. Missing values are asked for when running in a terminal.
Existing files are kept unless --force is given.

With --install-service the unit is also copied to /etc/systemd/system,
enabled and started (requires root).

Example:
  leadboard init --dir /etc/leadboard --supabase-url https://abc.supabase.co`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var initConfig = install.NewConfig()

func init() {
	f := initCmd.Flags()
	f.StringVar(&initConfig.Dir, "dir", initConfig.Dir, "Directory to write the files to")
	f.StringVar(&initConfig.Host, "host", initConfig.Host, "Host the server binds to")
	f.IntVar(&initConfig.Port, "port", initConfig.Port, "Port the server listens on")
	f.StringVar(&initConfig.Backend, "backend", "", "Backend: postgrest, postgres or sqlite")
	f.StringVar(&initConfig.SupabaseURL, "supabase-url", "", "Supabase project URL")
	f.StringVar(&initConfig.SQLitePath, "sqlite-path", "", "SQLite database file (default <dir>/leadboard.db)")
	f.StringVar(&initConfig.ServiceUser, "user", initConfig.ServiceUser, "User running the systemd service")
	f.StringVar(&initConfig.Binary, "binary", initConfig.Binary, "Path of the leadboard binary in the unit")
	f.BoolVar(&initConfig.InstallService, "install-service", false, "Install and start the systemd service")
	f.BoolVar(&initConfig.Force, "force", false, "Overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	install.PromptForMissingValues(initConfig)

	if err := install.New(initConfig, cmd.OutOrStdout()).Run(cmd.Context()); err != nil {
		return fmt.Errorf("init failed: %w", err)
	}
	return nil
}
