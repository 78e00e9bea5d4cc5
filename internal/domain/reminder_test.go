package domain_test

import (
	"testing"

	"github.com/lawchamber/reminderd/internal/domain"
)

func TestRunSummary_Record_KeepsCountsBalanced(t *testing.T) {
	var s domain.RunSummary

	s.Record(domain.DispatchOutcome{TaskID: "a", Status: domain.StatusSent})
	s.Record(domain.DispatchOutcome{TaskID: "b", Status: domain.StatusFailed})
	s.Record(domain.DispatchOutcome{TaskID: "c", Status: domain.StatusFailed})
	s.Record(domain.DispatchOutcome{TaskID: "d", Status: domain.StatusSkipped})

	if s.SentCount != 1 || s.FailedCount != 2 || s.SkippedCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/2/1", s.SentCount, s.FailedCount, s.SkippedCount)
	}
	if got := s.SentCount + s.FailedCount + s.SkippedCount; got != len(s.Outcomes) {
		t.Errorf("counter sum %d != outcome count %d", got, len(s.Outcomes))
	}
}

func TestRunSummary_Record_PreservesOrder(t *testing.T) {
	var s domain.RunSummary
	for _, id := range []string{"first", "second", "third"} {
		s.Record(domain.DispatchOutcome{TaskID: id, Status: domain.StatusSent})
	}
	for i, want := range []string{"first", "second", "third"} {
		if s.Outcomes[i].TaskID != want {
			t.Errorf("outcome %d = %s, want %s", i, s.Outcomes[i].TaskID, want)
		}
	}
}
