package reminderd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lawchamber/reminderd/internal/domain"
	redisstore "github.com/lawchamber/reminderd/internal/redis"
	"github.com/lawchamber/reminderd/pkg/telemetry"
)

// ErrNotLeader is returned when a scheduled trigger fires on an instance
// that did not win leader election.
var ErrNotLeader = errors.New("not the dispatch leader")

// ErrRunInFlight is returned by TryTrigger when a run is already executing.
var ErrRunInFlight = errors.New("a dispatch run is already in flight")

// Runner executes one dispatch run. Satisfied by *Coordinator.
type Runner interface {
	RunOnce(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error)
}

// Scheduler fires dispatch runs on a cron schedule. Triggers are
// serialized through a mutex: overlapping triggers never run concurrently,
// the later one waits and then computes its own window. A missed firing
// (process downtime) is not recovered; the next firing covers whatever is
// then due.
type Scheduler struct {
	schedule cron.Schedule
	runner   Runner
	elector  redisstore.LeaderElector // nil = single instance, always leader
	logger   *slog.Logger

	mu sync.Mutex
}

// NewScheduler parses expr as a standard 5-field cron expression and
// returns a Scheduler firing the runner on it.
func NewScheduler(expr string, runner Runner, elector redisstore.LeaderElector, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &Scheduler{
		schedule: schedule,
		runner:   runner,
		elector:  elector,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled, firing a run at every scheduled
// instant.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())
		s.logger.Info("next scheduled dispatch", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.Trigger(ctx, domain.TriggerScheduled); err != nil {
				if errors.Is(err, ErrNotLeader) {
					s.logger.Debug("skipping scheduled dispatch, not leader")
					continue
				}
				// Run-level failure. The scheduler keeps going; the next
				// instant gets a fresh window.
				s.logger.Error("scheduled dispatch failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Trigger fires one run, waiting for any in-flight run to finish first.
// Scheduled triggers defer to leader election; manual triggers are an
// explicit operator action and always run on this instance.
func (s *Scheduler) Trigger(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error) {
	if trigger == domain.TriggerScheduled && s.elector != nil && !s.elector.AcquireOrRenew(ctx) {
		telemetry.SchedulerTriggersTotal.WithLabelValues("not_leader").Inc()
		return nil, ErrNotLeader
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire(ctx, trigger)
}

// TryTrigger fires one run only if none is in flight, returning
// ErrRunInFlight otherwise.
func (s *Scheduler) TryTrigger(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error) {
	if !s.mu.TryLock() {
		telemetry.SchedulerTriggersTotal.WithLabelValues("in_flight").Inc()
		return nil, ErrRunInFlight
	}
	defer s.mu.Unlock()
	return s.fire(ctx, trigger)
}

func (s *Scheduler) fire(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error) {
	summary, err := s.runner.RunOnce(ctx, trigger)
	if err != nil {
		telemetry.SchedulerTriggersTotal.WithLabelValues("failed").Inc()
		return summary, err
	}
	telemetry.SchedulerTriggersTotal.WithLabelValues("ok").Inc()
	return summary, nil
}
