package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Dispatch runs ───────────────────────────────────────────────────────────

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reminderd",
		Subsystem: "dispatch",
		Name:      "runs_total",
		Help:      "Total dispatch runs, labelled by trigger and result.",
	}, []string{"trigger", "result"})

	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reminderd",
		Subsystem: "dispatch",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of one dispatch run.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	RunCandidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reminderd",
		Subsystem: "dispatch",
		Name:      "candidates_total",
		Help:      "Total due tasks considered across all runs.",
	})

	OutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reminderd",
		Subsystem: "dispatch",
		Name:      "outcomes_total",
		Help:      "Total per-task outcomes, labelled by status.",
	}, []string{"status"})

	FetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reminderd",
		Subsystem: "dispatch",
		Name:      "fetch_retries_total",
		Help:      "Total retries of the due-task query.",
	})

	// ─── Channel ─────────────────────────────────────────────────────────────────

	ChannelSendDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reminderd",
		Subsystem: "channel",
		Name:      "send_duration_seconds",
		Help:      "Duration of one provider send call.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// ─── Ad hoc HTTP API ─────────────────────────────────────────────────────────

	AdhocSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reminderd",
		Subsystem: "api",
		Name:      "adhoc_sends_total",
		Help:      "Total ad hoc send requests, labelled by result.",
	}, []string{"result"})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reminderd",
		Subsystem: "scheduler",
		Name:      "triggers_total",
		Help:      "Total scheduler trigger attempts, labelled by outcome.",
	}, []string{"outcome"})
)
