package cli

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lawchamber/reminderd/internal/postgres"
	"github.com/lawchamber/reminderd/internal/postgres/migrations"
	"github.com/lawchamber/reminderd/services/reminderd/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the dispatch audit-table migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrations(cmd.Context())
	},
}

// runMigrations applies the embedded SQL files in name order. Every file is
// written to be idempotent (CREATE TABLE IF NOT EXISTS), so re-running is
// safe.
func runMigrations(ctx context.Context) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel)

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		logger.Info("migration applied", "file", name)
	}
	return nil
}
