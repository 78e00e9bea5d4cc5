package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lawchamber/reminderd/internal/channel"
	"github.com/lawchamber/reminderd/internal/kafka"
	"github.com/lawchamber/reminderd/internal/postgres"
	redisstore "github.com/lawchamber/reminderd/internal/redis"
	"github.com/lawchamber/reminderd/internal/resolver"
	"github.com/lawchamber/reminderd/internal/version"
	"github.com/lawchamber/reminderd/pkg/telemetry"
	"github.com/lawchamber/reminderd/services/reminderd"
	"github.com/lawchamber/reminderd/services/reminderd/config"
	"github.com/lawchamber/reminderd/services/reminderd/handler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher: cron-scheduled reminder runs plus the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("http-addr", ":8080", "HTTP API listen address")
	serveCmd.Flags().String("schedule", "0 7 * * *", "cron expression for the daily dispatch run")
	serveCmd.Flags().String("channel", "log", "message channel: twilio | log")
	bindFlag("http_addr", serveCmd.Flags(), "http-addr")
	bindFlag("schedule", serveCmd.Flags(), "schedule")
	bindFlag("channel", serveCmd.Flags(), "channel")
}

func runServe(parent context.Context) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("reminderd starting",
		slog.String("version", version.Version),
		slog.String("commit", version.GitCommit),
		slog.String("schedule", cfg.Schedule),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, "reminderd", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer()

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
	res := resolver.New(resolver.WithCountryPrefix(cfg.CountryPrefix))

	var (
		elector redisstore.LeaderElector
		limiter redisstore.RateLimiter
	)
	coordOpts := []reminderd.Option{
		reminderd.WithHorizon(cfg.Horizon),
		reminderd.WithQueryTimeout(cfg.QueryTimeout),
		reminderd.WithSendTimeout(cfg.SendTimeout),
		reminderd.WithLogger(logger),
	}

	if cfg.RedisAddr != "" {
		rdb := redisstore.NewClient(cfg.RedisAddr)
		defer rdb.Close()

		hostname, _ := os.Hostname()
		instanceID := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
		elector = redisstore.NewLeaderElector(rdb, instanceID, logger)

		if cfg.AdhocRateLimit > 0 {
			limiter = redisstore.NewRateLimiter(rdb, cfg.AdhocRateLimit, cfg.AdhocRateWindow)
		}
		if cfg.DedupeEnabled {
			coordOpts = append(coordOpts,
				reminderd.WithDedupe(redisstore.NewDedupeStore(rdb, cfg.DedupeTTL)))
		}
	}

	sinks := []reminderd.SummarySink{
		reminderd.NewLogSink(logger),
		reminderd.NewStoreSink(repo),
	}
	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
		defer producer.Close()
		sinks = append(sinks, reminderd.NewKafkaSink(producer, cfg.SummaryTopic))
	}
	coordOpts = append(coordOpts, reminderd.WithSinks(sinks...))

	coord := reminderd.NewCoordinator(repo, res, ch, coordOpts...)
	scheduler, err := reminderd.NewScheduler(cfg.Schedule, coord, elector, logger)
	if err != nil {
		return err
	}

	rest := handler.NewREST(ch, res, limiter, scheduler, repo, pool, cfg.SendTimeout, logger)
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      rest.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // manual runs may wait on a full dispatch
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	telemetry.StartMetricsServer(ctx, cfg.MetricsAddr, logger)
	go scheduler.Run(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", slog.String("error", err.Error()))
		return err
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	logger.Info("reminderd stopped")
	return nil
}

func buildChannel(cfg config.Config, logger *slog.Logger) (channel.Client, error) {
	switch cfg.Channel {
	case "twilio":
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" {
			return nil, errors.New("twilio channel requires twilio_account_sid, twilio_auth_token and twilio_from_number")
		}
		return channel.NewTwilioClient(channel.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		}), nil
	case "log":
		return channel.NewLogClient(logger), nil
	default:
		return nil, fmt.Errorf("unknown channel %q (want twilio or log)", cfg.Channel)
	}
}
