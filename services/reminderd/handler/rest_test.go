package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawchamber/reminderd/internal/domain"
	redisstore "github.com/lawchamber/reminderd/internal/redis"
	"github.com/lawchamber/reminderd/internal/resolver"
	"github.com/lawchamber/reminderd/services/reminderd"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeChannel struct {
	calls int
	err   error
}

func (c *fakeChannel) Send(_ context.Context, destination, _ string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", &domain.ChannelError{Destination: destination, Err: c.err}
	}
	return "SM123", nil
}

type fakeLimiter struct {
	allow bool
}

func (l *fakeLimiter) Allow(_ context.Context, _ string) (bool, error) { return l.allow, nil }
func (l *fakeLimiter) Limit() int                                      { return 5 }

type fakeTrigger struct {
	summary  *domain.RunSummary
	err      error
	tryCalls int
}

func (t *fakeTrigger) Trigger(_ context.Context, trigger domain.Trigger) (*domain.RunSummary, error) {
	if t.err != nil {
		return nil, t.err
	}
	t.summary.Trigger = trigger
	return t.summary, nil
}

func (t *fakeTrigger) TryTrigger(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error) {
	t.tryCalls++
	return t.Trigger(ctx, trigger)
}

type fakeRuns struct {
	runs []domain.RunSummary
	err  error
}

func (r *fakeRuns) RecordRun(_ context.Context, _ *domain.RunSummary) error { return nil }
func (r *fakeRuns) ListRuns(_ context.Context, limit int) ([]domain.RunSummary, error) {
	if r.err != nil {
		return nil, r.err
	}
	if limit < len(r.runs) {
		return r.runs[:limit], nil
	}
	return r.runs, nil
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(_ context.Context) error { return p.err }

// ── helpers ───────────────────────────────────────────────────────────────────

func newTestREST(ch *fakeChannel, limiter *fakeLimiter, trigger RunTrigger, runs *fakeRuns, pinger *fakePinger) *REST {
	if trigger == nil {
		trigger = &fakeTrigger{summary: &domain.RunSummary{RunID: "run-1"}}
	}
	if runs == nil {
		runs = &fakeRuns{}
	}
	if pinger == nil {
		pinger = &fakePinger{}
	}
	var lim redisstore.RateLimiter
	if limiter != nil {
		lim = limiter
	}
	return NewREST(ch, resolver.New(), lim, trigger, runs, pinger, time.Second, slog.Default())
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSend(t *testing.T, rec *httptest.ResponseRecorder) SendMessageResponse {
	t.Helper()
	var resp SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestSendMessage_Success(t *testing.T) {
	ch := &fakeChannel{}
	h := newTestREST(ch, nil, nil, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/send-message",
		`{"phoneNumber":"+14155550100","message":"your hearing was moved"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSend(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "SM123", resp.MessageID)
	assert.Equal(t, 1, ch.calls)
}

func TestSendMessage_MissingPhoneNumber(t *testing.T) {
	ch := &fakeChannel{}
	h := newTestREST(ch, nil, nil, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/send-message", `{"message":"hello"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeSend(t, rec)
	assert.False(t, resp.Success)
	assert.Zero(t, ch.calls, "provider must not be called when phoneNumber is missing")
}

func TestSendMessage_MissingMessage(t *testing.T) {
	ch := &fakeChannel{}
	h := newTestREST(ch, nil, nil, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/send-message", `{"phoneNumber":"+14155550100"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ch.calls)
}

func TestSendMessage_InvalidPhoneNumber(t *testing.T) {
	ch := &fakeChannel{}
	h := newTestREST(ch, nil, nil, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/send-message",
		`{"phoneNumber":"not-a-number","message":"hello"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ch.calls)
}

func TestSendMessage_MalformedBody(t *testing.T) {
	ch := &fakeChannel{}
	h := newTestREST(ch, nil, nil, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/send-message", `{`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ch.calls)
}

func TestSendMessage_ProviderFailure(t *testing.T) {
	ch := &fakeChannel{err: errors.New("unreachable")}
	h := newTestREST(ch, nil, nil, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/send-message",
		`{"phoneNumber":"+14155550100","message":"hello"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeSend(t, rec)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestSendMessage_RateLimited(t *testing.T) {
	ch := &fakeChannel{}
	h := newTestREST(ch, &fakeLimiter{allow: false}, nil, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/send-message",
		`{"phoneNumber":"+14155550100","message":"hello"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, ch.calls, "rate-limited requests must not reach the provider")
}

func TestTriggerRun_Waits(t *testing.T) {
	trigger := &fakeTrigger{summary: &domain.RunSummary{RunID: "run-7", SentCount: 2}}
	h := newTestREST(&fakeChannel{}, nil, trigger, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/runs", "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var summary domain.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-7", summary.RunID)
	assert.Equal(t, domain.TriggerManual, summary.Trigger)
	assert.Zero(t, trigger.tryCalls)
}

func TestTriggerRun_NoWaitConflict(t *testing.T) {
	trigger := &fakeTrigger{err: reminderd.ErrRunInFlight}
	h := newTestREST(&fakeChannel{}, nil, trigger, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/runs?wait=false", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerRun_RunFailure(t *testing.T) {
	trigger := &fakeTrigger{err: &domain.DataSourceError{Op: "fetch", Err: errors.New("down")}}
	h := newTestREST(&fakeChannel{}, nil, trigger, nil, nil).Router()

	rec := doJSON(t, h, http.MethodPost, "/runs", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []domain.RunSummary{
		{RunID: "run-2"}, {RunID: "run-1"},
	}}
	h := newTestREST(&fakeChannel{}, nil, nil, runs, nil).Router()

	rec := doJSON(t, h, http.MethodGet, "/runs", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []domain.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].RunID)
}

func TestListRuns_BadLimit(t *testing.T) {
	h := newTestREST(&fakeChannel{}, nil, nil, nil, nil).Router()
	rec := doJSON(t, h, http.MethodGet, "/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadyz(t *testing.T) {
	h := newTestREST(&fakeChannel{}, nil, nil, nil, &fakePinger{}).Router()
	rec := doJSON(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	h = newTestREST(&fakeChannel{}, nil, nil, nil, &fakePinger{err: errors.New("no pg")}).Router()
	rec = doJSON(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
