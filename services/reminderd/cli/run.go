package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lawchamber/reminderd/internal/domain"
	"github.com/lawchamber/reminderd/internal/postgres"
	redisstore "github.com/lawchamber/reminderd/internal/redis"
	"github.com/lawchamber/reminderd/internal/resolver"
	"github.com/lawchamber/reminderd/services/reminderd"
	"github.com/lawchamber/reminderd/services/reminderd/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one dispatch run now and print the summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd.Context())
	},
}

func runOnce(ctx context.Context) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel)

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	ch, err := buildChannel(cfg, logger)
	if err != nil {
		return err
	}

	opts := []reminderd.Option{
		reminderd.WithHorizon(cfg.Horizon),
		reminderd.WithQueryTimeout(cfg.QueryTimeout),
		reminderd.WithSendTimeout(cfg.SendTimeout),
		reminderd.WithLogger(logger),
		reminderd.WithSinks(reminderd.NewStoreSink(repo)),
	}
	if cfg.RedisAddr != "" && cfg.DedupeEnabled {
		rdb := redisstore.NewClient(cfg.RedisAddr)
		defer rdb.Close()
		opts = append(opts, reminderd.WithDedupe(redisstore.NewDedupeStore(rdb, cfg.DedupeTTL)))
	}

	coord := reminderd.NewCoordinator(repo, resolver.New(resolver.WithCountryPrefix(cfg.CountryPrefix)), ch, opts...)

	summary, err := coord.RunOnce(ctx, domain.TriggerManual)
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	}
	return err
}
