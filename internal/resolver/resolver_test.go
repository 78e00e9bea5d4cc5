package resolver_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawchamber/reminderd/internal/domain"
	"github.com/lawchamber/reminderd/internal/resolver"
)

func dueTask(contact string) domain.DueTask {
	return domain.DueTask{
		TaskID:        "task-1",
		Description:   "File written submissions",
		Deadline:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		CaseReference: "HC/2026/0042",
		ClientContact: contact,
	}
}

func TestResolve_RendersDeterministicBody(t *testing.T) {
	r := resolver.New()
	msg, err := r.Resolve(dueTask("+94771234567"))
	require.NoError(t, err)

	assert.Equal(t, "+94771234567", msg.Destination)
	assert.Equal(t,
		`Reminder: the task "File written submissions" for case "HC/2026/0042" is due on 2026-03-14.`,
		msg.Body)
}

func TestResolve_DeadlineDateIsUTC(t *testing.T) {
	r := resolver.New()
	task := dueTask("+94771234567")
	// 23:30 UTC-5 is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*60*60)
	task.Deadline = time.Date(2026, 3, 14, 23, 30, 0, 0, loc)

	msg, err := r.Resolve(task)
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "2026-03-15")
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		in      string
		want    string
		wantErr bool
	}{
		{name: "already e164", in: "+94771234567", want: "+94771234567"},
		{name: "missing plus", in: "94771234567", want: "+94771234567"},
		{name: "formatting stripped", in: "+1 (415) 555-0100", want: "+14155550100"},
		{name: "local with prefix", prefix: "+94", in: "0771234567", want: "+94771234567"},
		{name: "local without prefix", in: "0771234567", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "letters", in: "not-a-number", wantErr: true},
		{name: "too short", in: "+9477", wantErr: true},
		{name: "too long", in: "+947712345678901234", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []resolver.Option
			if tt.prefix != "" {
				opts = append(opts, resolver.WithCountryPrefix(tt.prefix))
			}
			got, err := resolver.New(opts...).NormalizeNumber(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_BadContactIsResolutionError(t *testing.T) {
	r := resolver.New()
	_, err := r.Resolve(dueTask("garbage"))
	require.Error(t, err)

	var resErr *domain.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "task-1", resErr.TaskID)
}
