package reminderd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lawchamber/reminderd/internal/domain"
	"github.com/lawchamber/reminderd/internal/kafka"
	"github.com/lawchamber/reminderd/internal/postgres"
)

// SummarySink receives the RunSummary after every dispatch run. The
// scheduled path has nobody watching synchronously, so sinks are the only
// way failures become visible.
type SummarySink interface {
	Emit(ctx context.Context, summary *domain.RunSummary) error
}

// LogSink writes the summary to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, summary *domain.RunSummary) error {
	s.logger.Info("run summary",
		slog.String("run_id", summary.RunID),
		slog.String("trigger", string(summary.Trigger)),
		slog.Time("window_start", summary.WindowStart),
		slog.Time("window_end", summary.WindowEnd),
		slog.Int("candidates", summary.TotalCandidates),
		slog.Int("sent", summary.SentCount),
		slog.Int("failed", summary.FailedCount),
		slog.Int("skipped", summary.SkippedCount),
	)
	return nil
}

// KafkaSink publishes the summary as JSON to a topic for downstream
// observability consumers.
type KafkaSink struct {
	producer kafka.Producer
	topic    string
}

// NewKafkaSink creates a KafkaSink publishing to topic.
func NewKafkaSink(producer kafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Emit(ctx context.Context, summary *domain.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	return s.producer.Publish(ctx, s.topic, summary.RunID, payload)
}

// StoreSink persists the summary and its outcomes to the audit tables.
type StoreSink struct {
	repo postgres.RunRepository
}

// NewStoreSink creates a StoreSink.
func NewStoreSink(repo postgres.RunRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Emit(ctx context.Context, summary *domain.RunSummary) error {
	return s.repo.RecordRun(ctx, summary)
}
