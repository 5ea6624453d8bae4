package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/common"
	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/ternarybob/relay/internal/models"
	"github.com/ternarybob/relay/internal/queue"
	"github.com/ternarybob/relay/internal/worker"
	"golang.org/x/time/rate"
)

// SubmitRequest is the admission payload from the edge device.
type SubmitRequest struct {
	ID       string            `json:"id" validate:"omitempty,max=128"`
	Category string            `json:"category" validate:"required"`
	Payload  json.RawMessage   `json:"payload"`
	Meta     map[string]string `json:"meta"`
	Priority int               `json:"priority" validate:"omitempty,min=1,max=10"`
}

// OffloadHandler handles work submission, queue stats and breaker
// observability endpoints.
type OffloadHandler struct {
	queue     *queue.PriorityQueue
	scheduler *worker.Scheduler
	storage   interfaces.OutcomeStorage
	events    interfaces.EventService
	limiters  map[string]*rate.Limiter
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewOffloadHandler creates the offload API handler. Rate limiters are
// built from the [admission] config section, one per backend key.
func NewOffloadHandler(
	q *queue.PriorityQueue,
	scheduler *worker.Scheduler,
	storage interfaces.OutcomeStorage,
	events interfaces.EventService,
	admission *common.AdmissionConfig,
	logger arbor.ILogger,
) *OffloadHandler {
	if logger == nil {
		logger = common.GetLogger()
	}

	limiters := make(map[string]*rate.Limiter)
	if admission != nil {
		burst := admission.Burst
		if burst <= 0 {
			burst = 1
		}
		for key, perSecond := range admission.Rates {
			if perSecond > 0 {
				limiters[key] = rate.NewLimiter(rate.Limit(perSecond), burst)
			}
		}
	}

	return &OffloadHandler{
		queue:     q,
		scheduler: scheduler,
		storage:   storage,
		events:    events,
		limiters:  limiters,
		validate:  validator.New(),
		logger:    logger,
	}
}

// SubmitHandler handles POST /api/offload
func (h *OffloadHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	category := models.Category(req.Category)
	if !category.Valid() {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown category: %s", req.Category))
		return
	}

	if limiter, ok := h.limiters[category.Backend()]; ok && !limiter.Allow() {
		WriteError(w, http.StatusTooManyRequests, fmt.Sprintf("admission rate exceeded for %s", category.Backend()))
		return
	}

	id := req.ID
	if id == "" {
		id = common.NewWorkItemID()
	}

	item := models.NewWorkItem(id, category, req.Payload, req.Meta)
	if req.Priority != 0 {
		item.Priority = req.Priority
	}

	if !h.queue.Enqueue(item) {
		if h.events != nil {
			h.events.Publish(r.Context(), interfaces.Event{
				Type:    interfaces.EventQueueRejected,
				Payload: map[string]string{"id": item.ID, "category": req.Category},
			})
		}
		WriteError(w, http.StatusServiceUnavailable, "queue full, work item rejected")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":       item.ID,
		"status":   "queued",
		"priority": item.Priority,
	})
}

// StatsHandler handles GET /api/offload/stats
func (h *OffloadHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.queue.Stats())
}

// BreakersHandler handles GET /api/offload/breakers
func (h *OffloadHandler) BreakersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.scheduler.BreakerStates())
}

// BreakerResetHandler handles POST /api/offload/breakers/{backend}/reset
func (h *OffloadHandler) BreakerResetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	// Path shape: /api/offload/breakers/{backend}/reset
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 5 || parts[4] != "reset" {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}
	backend := parts[3]

	if err := h.scheduler.ResetBreaker(backend); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info().Str("backend", backend).Msg("Circuit breaker reset by operator")
	WriteSuccess(w, fmt.Sprintf("circuit breaker %s reset", backend))
}

// OutcomesHandler handles GET /api/offload/outcomes with optional
// id, status, category and limit query parameters.
func (h *OffloadHandler) OutcomesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		record, err := h.storage.GetRecord(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, record)
		return
	}

	opts := &interfaces.OutcomeListOptions{Limit: 50}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = models.OutcomeStatus(status)
	}
	if category := r.URL.Query().Get("category"); category != "" {
		opts.Category = models.Category(category)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}

	records, err := h.storage.ListRecords(r.Context(), opts)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(records),
		"outcomes": records,
	})
}

// ClearHandler handles POST /api/offload/clear - drops all pending
// work. Dropped items get no outcomes; the count is the only record.
func (h *OffloadHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	dropped := h.queue.Clear()
	h.logger.Warn().Int("dropped", dropped).Msg("Queue cleared by operator")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"dropped": dropped,
	})
}

// uptime tracking for the status endpoint
var startedAt = time.Now()

// StatusHandler reports service health for readiness checks.
type StatusHandler struct {
	queue     *queue.PriorityQueue
	scheduler *worker.Scheduler
	logger    arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(q *queue.PriorityQueue, scheduler *worker.Scheduler, logger arbor.ILogger) *StatusHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &StatusHandler{
		queue:     q,
		scheduler: scheduler,
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "relay",
		"version":   common.GetFullVersion(),
		"uptime":    time.Since(startedAt).String(),
		"scheduler": h.scheduler.Running(),
		"queue":     h.queue.Stats(),
		"breakers":  h.scheduler.BreakerStates(),
	})
}

// HealthHandler handles GET /api/health - liveness only.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
