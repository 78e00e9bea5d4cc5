package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lawchamber/reminderd/internal/domain"
)

// DueTaskSource reads candidate tasks for a dispatch window. Pure query,
// no mutation.
type DueTaskSource interface {
	// FetchDueTasks returns tasks whose deadline is inside the half-open
	// window [start, end), in deadline order. Zero rows is not an error.
	FetchDueTasks(ctx context.Context, start, end time.Time) ([]domain.DueTask, error)
}

// RunRepository persists dispatch run summaries for later inspection.
type RunRepository interface {
	RecordRun(ctx context.Context, summary *domain.RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the DueTaskSource and RunRepository
// interfaces.
func NewRepository(pool *pgxpool.Pool) interface {
	DueTaskSource
	RunRepository
} {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// FetchDueTasks joins tasks to their case and client so each candidate
// carries the contact number and case reference needed for resolution.
// A client without a phone number still yields a row (empty contact); the
// resolver turns that into a per-item failure instead of aborting the run.
func (r *repository) FetchDueTasks(ctx context.Context, start, end time.Time) ([]domain.DueTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.description, t.deadline, c.case_number, COALESCE(cl.phone, '')
		FROM tasks t
		JOIN cases c   ON c.id = t.case_id
		JOIN clients cl ON cl.id = c.client_id
		WHERE t.completed = FALSE
		  AND t.deadline >= $1
		  AND t.deadline <  $2
		ORDER BY t.deadline ASC, t.id ASC
	`, start, end)
	if err != nil {
		return nil, &domain.DataSourceError{Op: "query due tasks", Err: err}
	}
	defer rows.Close()

	var tasks []domain.DueTask
	for rows.Next() {
		var task domain.DueTask
		if err := rows.Scan(
			&task.TaskID, &task.Description, &task.Deadline,
			&task.CaseReference, &task.ClientContact,
		); err != nil {
			return nil, &domain.DataSourceError{Op: "scan due task", Err: err}
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DataSourceError{Op: "read due tasks", Err: err}
	}
	return tasks, nil
}

// RecordRun writes the summary row and its outcomes in one transaction.
func (r *repository) RecordRun(ctx context.Context, summary *domain.RunSummary) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO dispatch_runs
			(id, run_trigger, window_start, window_end, total_candidates,
			 sent_count, failed_count, skipped_count, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		summary.RunID, string(summary.Trigger),
		summary.WindowStart, summary.WindowEnd, summary.TotalCandidates,
		summary.SentCount, summary.FailedCount, summary.SkippedCount,
		summary.StartedAt, summary.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}

	for pos, o := range summary.Outcomes {
		_, err = tx.Exec(ctx, `
			INSERT INTO dispatch_outcomes
				(run_id, position, task_id, destination, status,
				 provider_message_id, error_detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			summary.RunID, pos, o.TaskID, o.Destination,
			string(o.Status), o.ProviderMessageID, o.ErrorDetail,
		)
		if err != nil {
			return fmt.Errorf("insert outcome %d of run %s: %w", pos, summary.RunID, err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns the most recent run summaries, newest first, with
// outcomes attached.
func (r *repository) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_trigger, window_start, window_end, total_candidates,
		       sent_count, failed_count, skipped_count, started_at, finished_at,
		       (SELECT COALESCE(json_agg(json_build_object(
		           'task_id', o.task_id,
		           'destination', o.destination,
		           'status', o.status,
		           'provider_message_id', o.provider_message_id,
		           'error_detail', o.error_detail
		        ) ORDER BY o.position), '[]')
		        FROM dispatch_outcomes o WHERE o.run_id = dispatch_runs.id)
		FROM dispatch_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun reads a run row from any pgx row type.
func scanRun(row interface {
	Scan(...any) error
}) (*domain.RunSummary, error) {
	var run domain.RunSummary
	var trigger string
	var outcomesJSON []byte
	err := row.Scan(
		&run.RunID, &trigger, &run.WindowStart, &run.WindowEnd,
		&run.TotalCandidates, &run.SentCount, &run.FailedCount, &run.SkippedCount,
		&run.StartedAt, &run.FinishedAt, &outcomesJSON,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("run not found")
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Trigger = domain.Trigger(trigger)
	if err := json.Unmarshal(outcomesJSON, &run.Outcomes); err != nil {
		return nil, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	return &run, nil
}
