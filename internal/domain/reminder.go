package domain

import "time"

// Trigger identifies what started a dispatch run.
type Trigger string

const (
	TriggerScheduled Trigger = "SCHEDULED"
	TriggerManual    Trigger = "MANUAL"
)

// OutcomeStatus is the terminal state of one dispatch attempt.
type OutcomeStatus string

const (
	StatusSent   OutcomeStatus = "SENT"
	StatusFailed OutcomeStatus = "FAILED"
	// StatusSkipped means the dedupe ledger already held a marker for this
	// task and window, so no second message was sent.
	StatusSkipped OutcomeStatus = "SKIPPED"
)

// DueTask is a read-only snapshot of a chamber task whose deadline falls
// inside the current dispatch window. Re-fetched every run, never mutated.
type DueTask struct {
	TaskID        string    `json:"task_id"`
	Description   string    `json:"description"`
	Deadline      time.Time `json:"deadline"`
	CaseReference string    `json:"case_reference"`
	ClientContact string    `json:"client_contact"`
}

// RecipientMessage is a resolved destination plus rendered body, owned by
// the coordinator for the lifetime of a single send attempt.
type RecipientMessage struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// DispatchOutcome records what happened to one candidate task.
type DispatchOutcome struct {
	TaskID            string        `json:"task_id"`
	Destination       string        `json:"destination,omitempty"`
	Status            OutcomeStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	ErrorDetail       string        `json:"error_detail,omitempty"`
}

// RunSummary aggregates one dispatch run. Outcomes keep the order the data
// source returned the candidates in.
type RunSummary struct {
	RunID           string            `json:"run_id"`
	Trigger         Trigger           `json:"trigger"`
	WindowStart     time.Time         `json:"window_start"`
	WindowEnd       time.Time         `json:"window_end"`
	TotalCandidates int               `json:"total_candidates"`
	SentCount       int               `json:"sent_count"`
	FailedCount     int               `json:"failed_count"`
	SkippedCount    int               `json:"skipped_count"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Outcomes        []DispatchOutcome `json:"outcomes"`
}

// Record appends an outcome and bumps the matching counter, keeping
// SentCount+FailedCount+SkippedCount == len(Outcomes).
func (s *RunSummary) Record(o DispatchOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case StatusSent:
		s.SentCount++
	case StatusSkipped:
		s.SkippedCount++
	default:
		s.FailedCount++
	}
}
