package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"enterprisehub-backend/services/metrics-service/internal/metrics"
	"enterprisehub-backend/services/metrics-service/internal/storage"
)

// AlertLog is the durable side of the engine: entity registrations and
// the alert history survive restarts there. *storage.Repository
// implements it; deployments without a database leave it nil.
type AlertLog interface {
	UpsertEntity(ctx context.Context, rec storage.EntityRecord) error
	DeleteEntity(ctx context.Context, id string) error
	ListAlerts(ctx context.Context, entityID string) ([]storage.AlertRecord, error)
	MarkAlertAcknowledged(ctx context.Context, alertID string) error
}

// Handler exposes the engine to collaborator teams over HTTP: entity
// registration, sample ingestion and the pull-based read APIs. Writes
// that change entities or alerts are mirrored into Log when present;
// a mirror failure is logged and never fails the request, the engine
// stays the source of truth.
type Handler struct {
	Engine *metrics.Engine
	Log    AlertLog
	Logger *slog.Logger
}

const logTimeout = 5 * time.Second

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) mirror(r *http.Request, op string, fn func(ctx context.Context) error) {
	if h.Log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), logTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		h.logger().Error("durable log write failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}

type registerEntityRequest struct {
	ID      string             `json:"id"`
	Kind    string             `json:"kind"`
	Weights map[string]float64 `json:"weights"`
	Targets map[string]float64 `json:"targets"`
}

type sampleRequest struct {
	Metric string     `json:"metric"`
	Value  float64    `json:"value"`
	TS     *time.Time `json:"ts"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)
	r.Route("/entities", func(r chi.Router) {
		r.Get("/", h.handleOverview)
		r.Post("/", h.handleEntityRegister)
		r.Delete("/{id}", h.handleEntityDeregister)
		r.Post("/{id}/samples", h.handleSampleRecord)
		r.Post("/{id}/rebaseline", h.handleRebaseline)
		r.Get("/{id}/metrics/{metric}/buckets", h.handleBuckets)
		r.Get("/{id}/score", h.handleScore)
		r.Get("/{id}/trend", h.handleTrend)
		r.Get("/{id}/alerts", h.handleAlerts)
		r.Get("/{id}/alerts/history", h.handleAlertHistory)
	})
	r.Post("/alerts/{id}/ack", h.handleAlertAck)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Overview())
}

func (h *Handler) handleEntityRegister(w http.ResponseWriter, r *http.Request) {
	var req registerEntityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	entity := metrics.MonitoredEntity{
		ID:      req.ID,
		Kind:    metrics.EntityKind(req.Kind),
		Weights: req.Weights,
		Targets: req.Targets,
	}
	if err := h.Engine.RegisterEntity(entity); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	h.mirror(r, "upsert entity", func(ctx context.Context) error {
		return h.Log.UpsertEntity(ctx, entityRecord(entity))
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": entity.ID})
}

func (h *Handler) handleEntityDeregister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Engine.DeregisterEntity(id); err != nil {
		writeEngineError(w, err)
		return
	}
	h.mirror(r, "delete entity", func(ctx context.Context) error {
		return h.Log.DeleteEntity(ctx, id)
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleSampleRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sampleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	if req.Metric == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "metric is required"})
		return
	}
	ts := time.Now().UTC()
	if req.TS != nil {
		ts = req.TS.UTC()
	}
	if err := h.Engine.RecordSample(id, req.Metric, req.Value, ts); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleRebaseline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Engine.Rebaseline(id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleBuckets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	metric := chi.URLParam(r, "metric")
	tier := metrics.Tier(r.URL.Query().Get("tier"))
	if tier == "" {
		tier = metrics.TierRealtime
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	buckets, err := h.Engine.Query(id, metric, tier, from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "buckets": buckets})
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	score, err := h.Engine.CurrentScore(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "score": score})
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trend, err := h.Engine.Trend(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "trend": trend})
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.Engine.Entity(id); !ok {
		writeEngineError(w, metrics.ErrInvalidEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "alerts": h.Engine.Alerts(id)})
}

// handleAlertHistory reads the durable alert log, which reaches past
// the in-memory retention horizon.
func (h *Handler) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	if h.Log == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "message": "alert history requires a database"})
		return
	}
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), logTimeout)
	defer cancel()
	alerts, err := h.Log.ListAlerts(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "alerts": alerts})
}

func (h *Handler) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.Engine.AcknowledgeAlert(id) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "alert not found"})
		return
	}
	h.mirror(r, "ack alert", func(ctx context.Context) error {
		err := h.Log.MarkAlertAcknowledged(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			// the alert was raised before the database was attached
			return nil
		}
		return err
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func entityRecord(entity metrics.MonitoredEntity) storage.EntityRecord {
	weights, _ := json.Marshal(entity.Weights)
	targets, _ := json.Marshal(entity.Targets)
	return storage.EntityRecord{
		ID:      entity.ID,
		Kind:    string(entity.Kind),
		Weights: weights,
		Targets: targets,
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, metrics.ErrInvalidEntity):
		status = http.StatusNotFound
	case errors.Is(err, metrics.ErrMissingWeight), errors.Is(err, metrics.ErrUnknownTier):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{"ok": false, "message": err.Error()})
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
