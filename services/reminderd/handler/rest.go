package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lawchamber/reminderd/internal/channel"
	"github.com/lawchamber/reminderd/internal/domain"
	"github.com/lawchamber/reminderd/internal/postgres"
	redisstore "github.com/lawchamber/reminderd/internal/redis"
	"github.com/lawchamber/reminderd/internal/resolver"
	"github.com/lawchamber/reminderd/pkg/telemetry"
	"github.com/lawchamber/reminderd/services/reminderd"
	"github.com/lawchamber/reminderd/services/reminderd/middleware"
)

// RunTrigger starts dispatch runs on demand. Satisfied by
// *reminderd.Scheduler so manual runs share the scheduler's serialization.
type RunTrigger interface {
	Trigger(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error)
	TryTrigger(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, error)
}

// Pinger reports whether the backing store is reachable. Satisfied by
// *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// REST handles the service's HTTP surface: the ad hoc send endpoint used by
// the case-management UI, manual run triggers, and run history.
type REST struct {
	channel     channel.Client
	resolver    *resolver.Resolver
	limiter     redisstore.RateLimiter // nil = disabled
	trigger     RunTrigger
	runs        postgres.RunRepository
	pinger      Pinger
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewREST creates a REST handler.
func NewREST(
	ch channel.Client,
	res *resolver.Resolver,
	limiter redisstore.RateLimiter,
	trigger RunTrigger,
	runs postgres.RunRepository,
	pinger Pinger,
	sendTimeout time.Duration,
	logger *slog.Logger,
) *REST {
	return &REST{
		channel:     ch,
		resolver:    res,
		limiter:     limiter,
		trigger:     trigger,
		runs:        runs,
		pinger:      pinger,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Router builds the chi router for all endpoints.
func (h *REST) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(h.logger))
	r.Post("/send-message", h.SendMessage)
	r.Post("/runs", h.TriggerRun)
	r.Get("/runs", h.ListRuns)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	return r
}

// SendMessageRequest is the JSON body for POST /send-message.
type SendMessageRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// SendMessageResponse is the response body for POST /send-message.
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendMessage handles POST /send-message — the "share with client" feature
// sends one ad hoc WhatsApp message and reports the result synchronously.
func (h *REST) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("reminderd").Start(r.Context(), "api.send_message")
	defer span.End()

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		telemetry.AdhocSendsTotal.WithLabelValues("bad_request").Inc()
		writeSendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PhoneNumber == "" || req.Message == "" {
		telemetry.AdhocSendsTotal.WithLabelValues("bad_request").Inc()
		writeSendError(w, http.StatusBadRequest, "phoneNumber and message are required")
		return
	}

	destination, err := h.resolver.NormalizeNumber(req.PhoneNumber)
	if err != nil {
		telemetry.AdhocSendsTotal.WithLabelValues("bad_request").Inc()
		writeSendError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("send.destination", destination))

	if h.limiter != nil {
		allowed, limitErr := h.limiter.Allow(ctx, destination)
		if limitErr != nil {
			// Allow on limiter failure so a Redis outage doesn't block sends.
			h.logger.Error("rate limiter error", slog.String("error", limitErr.Error()))
		} else if !allowed {
			telemetry.AdhocSendsTotal.WithLabelValues("rate_limited").Inc()
			writeSendError(w, http.StatusTooManyRequests, "too many messages to this number, try again later")
			return
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	messageID, err := h.channel.Send(sendCtx, destination, req.Message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider send failed")
		telemetry.AdhocSendsTotal.WithLabelValues("provider_error").Inc()
		h.logger.Error("ad hoc send failed",
			slog.String("destination", destination),
			slog.String("error", err.Error()),
		)
		writeSendError(w, http.StatusBadGateway, err.Error())
		return
	}

	telemetry.AdhocSendsTotal.WithLabelValues("ok").Inc()
	h.logger.Info("ad hoc message sent",
		slog.String("destination", destination),
		slog.String("message_id", messageID),
	)
	writeJSON(w, http.StatusOK, SendMessageResponse{Success: true, MessageID: messageID})
}

// TriggerRun handles POST /runs — fires one dispatch run. With ?wait=false
// the request fails fast with 409 if a run is already executing; otherwise
// it waits its turn.
func (h *REST) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var summary *domain.RunSummary
	var err error
	if r.URL.Query().Get("wait") == "false" {
		summary, err = h.trigger.TryTrigger(r.Context(), domain.TriggerManual)
	} else {
		summary, err = h.trigger.Trigger(r.Context(), domain.TriggerManual)
	}

	if err != nil {
		if errors.Is(err, reminderd.ErrRunInFlight) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("manual run failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, summary)
}

// ListRuns handles GET /runs?limit=N.
func (h *REST) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz — checks store connectivity.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "postgres not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeSendError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, SendMessageResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
