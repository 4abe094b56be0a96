package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadboard/internal/store"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Create the tables of a Postgres backend",
	GroupID: groupServer,
	Long: `Create the leads, kanban_columns and kanban_items tables on the configured
Postgres database. Existing tables are left untouched.

The SQLite backend creates its schema on open, and a PostgREST backend is
managed through Supabase, so both are rejected.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	addConfigFlags(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}

	switch cfg.Backend.Kind {
	case store.KindPostgres:
	case store.KindSQLite:
		fmt.Fprintf(cmd.OutOrStdout(), "SQLite backend %s creates its schema on first use, nothing to do\n", cfg.Backend.Path)
		return nil
	default:
		return fmt.Errorf("migrate supports the postgres backend only, configured backend is %s", cfg.Backend.Kind)
	}

	pg, err := store.NewPostgres(cfg.Backend.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
	return nil
}
