package reminderd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lawchamber/reminderd/internal/channel"
	"github.com/lawchamber/reminderd/internal/domain"
	"github.com/lawchamber/reminderd/internal/postgres"
	redisstore "github.com/lawchamber/reminderd/internal/redis"
	"github.com/lawchamber/reminderd/internal/resolver"
	"github.com/lawchamber/reminderd/pkg/retry"
	"github.com/lawchamber/reminderd/pkg/telemetry"
)

// Coordinator executes one dispatch run: query due tasks for the window,
// resolve each to a recipient message, send it, and aggregate the outcomes
// into a RunSummary. Tasks are processed sequentially in source order so
// the summary is deterministic.
type Coordinator struct {
	source       postgres.DueTaskSource
	resolver     *resolver.Resolver
	channel      channel.Client
	dedupe       redisstore.DedupeStore // nil = disabled
	sinks        []SummarySink
	horizon      time.Duration
	queryTimeout time.Duration
	sendTimeout  time.Duration
	fetchRetries int
	fetchDelay   time.Duration
	logger       *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithHorizon(d time.Duration) Option      { return func(c *Coordinator) { c.horizon = d } }
func WithQueryTimeout(d time.Duration) Option { return func(c *Coordinator) { c.queryTimeout = d } }
func WithSendTimeout(d time.Duration) Option  { return func(c *Coordinator) { c.sendTimeout = d } }
func WithLogger(l *slog.Logger) Option        { return func(c *Coordinator) { c.logger = l } }
func WithDedupe(d redisstore.DedupeStore) Option {
	return func(c *Coordinator) { c.dedupe = d }
}
func WithSinks(sinks ...SummarySink) Option {
	return func(c *Coordinator) { c.sinks = append(c.sinks, sinks...) }
}

// WithFetchRetry sets how often the (idempotent, read-only) due-task query
// is retried before the run is declared failed.
func WithFetchRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Coordinator) {
		c.fetchRetries = attempts
		c.fetchDelay = baseDelay
	}
}

// NewCoordinator constructs a Coordinator with the given dependencies.
func NewCoordinator(
	source postgres.DueTaskSource,
	res *resolver.Resolver,
	ch channel.Client,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		source:       source,
		resolver:     res,
		channel:      ch,
		horizon:      24 * time.Hour,
		queryTimeout: 10 * time.Second,
		sendTimeout:  15 * time.Second,
		fetchRetries: 3,
		fetchDelay:   time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunOnce executes a single dispatch run over the window
// [now, now+horizon). Every candidate yields exactly one outcome; a failed
// send never aborts the run. A data source failure aborts the run with
// zero outcomes and a run-level *domain.DataSourceError.
func (c *Coordinator) RunOnce(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error) {
	ctx, span := otel.Tracer("reminderd").Start(ctx, "dispatch.run")
	defer span.End()

	now := time.Now().UTC()
	summary := &domain.RunSummary{
		RunID:       uuid.New().String(),
		Trigger:     trigger,
		WindowStart: now,
		WindowEnd:   now.Add(c.horizon),
		StartedAt:   now,
	}
	span.SetAttributes(
		attribute.String("run.id", summary.RunID),
		attribute.String("run.trigger", string(trigger)),
	)

	log := c.logger.With(
		slog.String("run_id", summary.RunID),
		slog.String("trigger", string(trigger)),
	)
	log.Info("dispatch run starting",
		slog.Time("window_start", summary.WindowStart),
		slog.Time("window_end", summary.WindowEnd),
	)

	tasks, err := c.fetchDueTasks(ctx, summary.WindowStart, summary.WindowEnd)
	if err != nil {
		summary.FinishedAt = time.Now().UTC()
		span.RecordError(err)
		span.SetStatus(codes.Error, "due-task query failed")
		telemetry.RunsTotal.WithLabelValues(string(trigger), "failed").Inc()
		log.Error("dispatch run aborted, data source unavailable",
			slog.String("error", err.Error()),
		)
		c.emit(ctx, log, summary)
		return summary, err
	}

	summary.TotalCandidates = len(tasks)
	telemetry.RunCandidatesTotal.Add(float64(len(tasks)))

	for _, task := range tasks {
		c.dispatch(ctx, log, summary, task)
	}

	summary.FinishedAt = time.Now().UTC()
	telemetry.RunsTotal.WithLabelValues(string(trigger), "ok").Inc()
	telemetry.RunDurationSeconds.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	log.Info("dispatch run finished",
		slog.Int("candidates", summary.TotalCandidates),
		slog.Int("sent", summary.SentCount),
		slog.Int("failed", summary.FailedCount),
		slog.Int("skipped", summary.SkippedCount),
	)
	c.emit(ctx, log, summary)
	return summary, nil
}

// fetchDueTasks runs the window query with a per-attempt timeout, retrying
// transient store failures. The query is read-only, so retrying is safe.
func (c *Coordinator) fetchDueTasks(ctx context.Context, start, end time.Time) ([]domain.DueTask, error) {
	var tasks []domain.DueTask
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: c.fetchRetries,
		BaseDelay:   c.fetchDelay,
		MaxDelay:    10 * time.Second,
		OnRetry: func(attempt int, retryErr error) {
			telemetry.FetchRetriesTotal.Inc()
			c.logger.Warn("due-task query failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func() error {
		queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
		var fetchErr error
		tasks, fetchErr = c.source.FetchDueTasks(queryCtx, start, end)
		return fetchErr
	})
	if err != nil {
		var dsErr *domain.DataSourceError
		if !errors.As(err, &dsErr) {
			err = &domain.DataSourceError{Op: "fetch due tasks", Err: err}
		}
		return nil, err
	}
	return tasks, nil
}

// dispatch processes one candidate and records exactly one outcome.
func (c *Coordinator) dispatch(ctx context.Context, log *slog.Logger, summary *domain.RunSummary, task domain.DueTask) {
	msg, err := c.resolver.Resolve(task)
	if err != nil {
		telemetry.OutcomesTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
		summary.Record(domain.DispatchOutcome{
			TaskID:      task.TaskID,
			Status:      domain.StatusFailed,
			ErrorDetail: err.Error(),
		})
		log.Warn("recipient resolution failed",
			slog.String("task_id", task.TaskID),
			slog.String("error", err.Error()),
		)
		return
	}

	var claimed bool
	if c.dedupe != nil {
		ok, dedupeErr := c.dedupe.MarkSent(ctx, task.TaskID, summary.WindowStart)
		switch {
		case dedupeErr != nil:
			// Send anyway: a Redis hiccup must not silently drop reminders.
			// Delivery stays at-least-once.
			log.Error("dedupe check failed, sending without marker",
				slog.String("task_id", task.TaskID),
				slog.String("error", dedupeErr.Error()),
			)
		case !ok:
			telemetry.OutcomesTotal.WithLabelValues(string(domain.StatusSkipped)).Inc()
			summary.Record(domain.DispatchOutcome{
				TaskID:      task.TaskID,
				Destination: msg.Destination,
				Status:      domain.StatusSkipped,
				ErrorDetail: "already sent for this window",
			})
			log.Info("reminder already sent for this window, skipping",
				slog.String("task_id", task.TaskID),
			)
			return
		default:
			claimed = true
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	start := time.Now()
	messageID, err := c.channel.Send(sendCtx, msg.Destination, msg.Body)
	cancel()
	telemetry.ChannelSendDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		// Nothing was delivered, so the claim must not stand: a surviving
		// marker would turn this failure into a skip on the next run and
		// the reminder would never go out inside the window.
		if claimed {
			if relErr := c.dedupe.Release(ctx, task.TaskID, summary.WindowStart); relErr != nil {
				log.Error("dedupe release failed, task may be skipped until marker expiry",
					slog.String("task_id", task.TaskID),
					slog.String("error", relErr.Error()),
				)
			}
		}
		telemetry.OutcomesTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
		summary.Record(domain.DispatchOutcome{
			TaskID:      task.TaskID,
			Destination: msg.Destination,
			Status:      domain.StatusFailed,
			ErrorDetail: err.Error(),
		})
		log.Warn("channel send failed",
			slog.String("task_id", task.TaskID),
			slog.String("destination", msg.Destination),
			slog.String("error", err.Error()),
		)
		return
	}

	telemetry.OutcomesTotal.WithLabelValues(string(domain.StatusSent)).Inc()
	summary.Record(domain.DispatchOutcome{
		TaskID:            task.TaskID,
		Destination:       msg.Destination,
		Status:            domain.StatusSent,
		ProviderMessageID: messageID,
	})
	log.Info("reminder sent",
		slog.String("task_id", task.TaskID),
		slog.String("destination", msg.Destination),
		slog.String("message_id", messageID),
	)
}

// emit hands the summary to every sink. Sink failures are logged, never
// propagated: the run's outcome does not depend on observability plumbing.
func (c *Coordinator) emit(ctx context.Context, log *slog.Logger, summary *domain.RunSummary) {
	for _, sink := range c.sinks {
		if err := sink.Emit(ctx, summary); err != nil {
			log.Error("summary sink failed", slog.String("error", err.Error()))
		}
	}
}
