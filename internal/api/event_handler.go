package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/status"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// GetStats возвращает статистику runner'а и сводку по вердиктам.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Summary: h.recorder.Summary()}
	if h.runner != nil {
		stats := h.runner.Stats()
		resp.Runner = &stats
	}
	Success(w, resp)
}

// ListEvents возвращает последние отчёты, новые первыми.
// GET /api/v1/events?limit=...
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	reports := h.recorder.Recent(limit)
	result := make([]EventResponse, len(reports))
	for i, report := range reports {
		result[i] = EventFromReport(report)
	}

	List(w, result, len(result))
}

// GetEvent возвращает итог обработки event.
// Сначала Recorder, затем хранилище статусов.
// GET /api/v1/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		BadRequest(w, "invalid event id")
		return
	}

	report, err := h.recorder.Get(r.Context(), id)
	if err == nil {
		Success(w, EventFromReport(report))
		return
	}
	if !errors.Is(err, status.ErrNotFound) || h.store == nil {
		HandleRepoError(w, h.logger, err, "event not found")
		return
	}

	record, err := h.store.GetByEventID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "event not found") {
		return
	}

	Success(w, EventFromRecord(record))
}

// CreateEvent ставит event в очередь events.pending.
// POST /api/v1/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		Unavailable(w, "event queue is not configured")
		return
	}

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	event, err := domain.NewEvent(req.ID, req.AssetIDs...)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.publisher.PublishEvent(r.Context(), event); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("event enqueued", "event_id", event.ID, "assets", len(event.AssetIDs))
	Accepted(w, event)
}

// Healthz — проверка живости.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	Success(w, map[string]string{"status": "ok"})
}
