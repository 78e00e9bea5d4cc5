package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lawchamber/reminderd/internal/domain"
)

// e164 is the normalized destination format the channel provider accepts:
// a leading +, a non-zero digit, then 7 to 14 more digits.
var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// Resolver turns a due task into a destination phone number and a rendered
// reminder body. Resolution is pure: same task in, same message out.
type Resolver struct {
	countryPrefix string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCountryPrefix sets the prefix substituted for a leading "0" in
// locally formatted numbers (e.g. "+94" turns 0771234567 into +94771234567).
func WithCountryPrefix(prefix string) Option {
	return func(r *Resolver) { r.countryPrefix = prefix }
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a due task to a RecipientMessage. Returns ResolutionError
// when the task's contact cannot be normalized to a phone number.
func (r *Resolver) Resolve(task domain.DueTask) (domain.RecipientMessage, error) {
	dest, err := r.NormalizeNumber(task.ClientContact)
	if err != nil {
		return domain.RecipientMessage{}, &domain.ResolutionError{
			TaskID: task.TaskID,
			Reason: err.Error(),
		}
	}
	return domain.RecipientMessage{
		Destination: dest,
		Body:        renderBody(task),
	}, nil
}

// NormalizeNumber strips formatting characters and validates the result as
// an E.164-style number. Locally formatted numbers (leading 0) are only
// accepted when a country prefix is configured.
func (r *Resolver) NormalizeNumber(raw string) (string, error) {
	cleaned := strings.Map(func(c rune) rune {
		switch c {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return c
	}, raw)

	if cleaned == "" {
		return "", fmt.Errorf("contact number is empty")
	}
	if strings.HasPrefix(cleaned, "0") && r.countryPrefix != "" {
		cleaned = r.countryPrefix + cleaned[1:]
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+" + cleaned
	}
	if !e164.MatchString(cleaned) {
		return "", fmt.Errorf("contact %q is not a valid phone number", raw)
	}
	return cleaned, nil
}

// renderBody produces the reminder text. The deadline is formatted as an
// ISO-8601 date so the output never depends on locale.
func renderBody(task domain.DueTask) string {
	return fmt.Sprintf(
		"Reminder: the task %q for case %q is due on %s.",
		task.Description,
		task.CaseReference,
		task.Deadline.UTC().Format("2006-01-02"),
	)
}
