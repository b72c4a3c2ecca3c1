package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vertigrow/internal/analytics"
	"vertigrow/internal/cache"
	"vertigrow/internal/hub"
	"vertigrow/internal/metrics"
	"vertigrow/internal/models"
	"vertigrow/internal/monitor"
	"vertigrow/internal/simulation"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handler обработчик HTTP запросов
type Handler struct {
	engine   *simulation.Engine
	store    cache.Store
	pipeline *monitor.Pipeline
	analyzer *analytics.Analyzer
	hub      *hub.Hub
}

// NewHandler создает новый обработчик
func NewHandler(engine *simulation.Engine, store cache.Store, pipeline *monitor.Pipeline, analyzer *analytics.Analyzer, wsHub *hub.Hub) *Handler {
	return &Handler{
		engine:   engine,
		store:    store,
		pipeline: pipeline,
		analyzer: analyzer,
		hub:      wsHub,
	}
}

// Routes собирает маршрутизатор
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/sensor-data", instrument("/api/sensor-data", h.GetSensorData))
		r.Get("/sensor-data/{towerID}", instrument("/api/sensor-data/{towerID}", h.GetSensorHistory))

		r.Get("/towers", instrument("/api/towers", h.ListTowers))
		r.Post("/towers", instrument("/api/towers", h.CreateTower))
		r.Get("/towers/{towerID}", instrument("/api/towers/{towerID}", h.GetTower))
		r.Patch("/towers/{towerID}", instrument("/api/towers/{towerID}", h.UpdateTower))
		r.Delete("/towers/{towerID}", instrument("/api/towers/{towerID}", h.DeleteTower))

		r.Get("/plant-profiles", instrument("/api/plant-profiles", h.GetPlantProfiles))
		r.Get("/facility", instrument("/api/facility", h.GetFacility))
		r.Get("/analytics/{towerID}", instrument("/api/analytics/{towerID}", h.GetAnalytics))

		r.Get("/alerts", instrument("/api/alerts", h.GetAlerts))
		r.Post("/alerts/{alertID}/ack", instrument("/api/alerts/{alertID}/ack", h.AcknowledgeAlert))
	})

	r.Get("/health", h.HealthCheck)
	r.Get("/stats", instrument("/stats", h.GetStats))
	r.Method(http.MethodGet, "/prometheus", promhttp.Handler())
	r.Method(http.MethodGet, "/ws", h.hub)

	return r
}

// statusRecorder запоминает код ответа
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument учитывает запросы и их длительность в Prometheus
func instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor сопоставляет ошибки домена кодам ответа
func statusFor(err error) int {
	switch {
	case errors.Is(err, simulation.ErrTowerNotFound), errors.Is(err, cache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simulation.ErrInvalidTower), errors.Is(err, simulation.ErrUnknownPlant):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseLimit читает ?limit= с ограничением сверху
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

// GetSensorData обрабатывает GET /api/sensor-data
func (h *Handler) GetSensorData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// GetSensorHistory обрабатывает GET /api/sensor-data/{towerID}
func (h *Handler) GetSensorHistory(w http.ResponseWriter, r *http.Request) {
	towerID := chi.URLParam(r, "towerID")
	if _, _, err := h.engine.Tower(towerID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := h.store.RecentReadings(r.Context(), towerID, limit)
	metrics.StoreResult("recent_readings", err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"towerId":  towerID,
		"count":    len(readings),
		"readings": readings,
	})
}

// ListTowers обрабатывает GET /api/towers
func (h *Handler) ListTowers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Towers())
}

// CreateTower обрабатывает POST /api/towers
func (h *Handler) CreateTower(w http.ResponseWriter, r *http.Request) {
	var tower models.Tower
	if err := json.NewDecoder(r.Body).Decode(&tower); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// Идентификатор и время создания назначает сервер
	tower.ID = ""
	tower.CreatedAt = time.Time{}

	created, err := h.engine.AddTower(tower)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetTower обрабатывает GET /api/towers/{towerID}
func (h *Handler) GetTower(w http.ResponseWriter, r *http.Request) {
	tower, latest, err := h.engine.Tower(chi.URLParam(r, "towerID"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tower":   tower,
		"latest":  latest,
		"profile": simulation.Profile(tower.PlantType),
	})
}

// UpdateTower обрабатывает PATCH /api/towers/{towerID}
func (h *Handler) UpdateTower(w http.ResponseWriter, r *http.Request) {
	var upd simulation.TowerUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tower, err := h.engine.UpdateTower(chi.URLParam(r, "towerID"), upd)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tower)
}

// DeleteTower обрабатывает DELETE /api/towers/{towerID}
func (h *Handler) DeleteTower(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.RemoveTower(r.Context(), chi.URLParam(r, "towerID")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPlantProfiles обрабатывает GET /api/plant-profiles
func (h *Handler) GetPlantProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, simulation.Profiles())
}

// GetFacility обрабатывает GET /api/facility
func (h *Handler) GetFacility(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Facility())
}

// GetAnalytics обрабатывает GET /api/analytics/{towerID}
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	towerID := chi.URLParam(r, "towerID")
	if _, _, err := h.engine.Tower(towerID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	anomalies, err := h.store.RecentAnomalies(r.Context(), towerID, limit)
	metrics.StoreResult("recent_anomalies", err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve analytics")
		return
	}

	response := map[string]interface{}{
		"towerId":      towerID,
		"anomalyCount": len(anomalies),
		"anomalies":    anomalies,
	}
	if summary, ok := h.analyzer.Summary(towerID); ok {
		response["rolling"] = summary
	}
	writeJSON(w, http.StatusOK, response)
}

// GetAlerts обрабатывает GET /api/alerts
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recent, err := h.store.RecentAlerts(r.Context(), limit)
	metrics.StoreResult("recent_alerts", err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(recent),
		"alerts": recent,
	})
}

// AcknowledgeAlert обрабатывает POST /api/alerts/{alertID}/ack
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.store.AcknowledgeAlert(r.Context(), chi.URLParam(r, "alertID"))
	metrics.StoreResult("ack_alert", err)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	storeOK := h.store.Ping(r.Context()) == nil

	status := "healthy"
	httpStatus := http.StatusOK

	if !storeOK {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"store":     storeOK,
		"timestamp": time.Now(),
	})
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ticks, err := h.store.Counter(r.Context(), "ticks")
	if err != nil {
		ticks = -1
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulation":   h.engine.Stats(),
		"analyzer":     h.analyzer.Stats(),
		"store":        h.store.Stats(),
		"websocket":    h.hub.Stats(),
		"stored_ticks": ticks,
		"timestamp":    time.Now(),
	})
}
