package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vogiaan1904/ticketbottle-admission/internal/service"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
)

// HTTPHandler exposes the admission surface. Identity is supplied by the edge
// gateway as a verified X-User-Id header; this service never authenticates.
type HTTPHandler struct {
	qSvc      service.QueueService
	worker    service.AdmissionWorker
	logger    logger.Logger
	validator *validator.Validate
	adminKey  string
}

func NewHTTPHandler(qSvc service.QueueService, worker service.AdmissionWorker, adminKey string, logger logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		qSvc:      qSvc,
		worker:    worker,
		logger:    logger,
		validator: validator.New(),
		adminKey:  adminKey,
	}
}

func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/admission", func(r chi.Router) {
		r.Post("/check", h.Check)
		r.Get("/status", h.Status)
		r.Post("/heartbeat", h.Heartbeat)
		r.Post("/leave", h.Leave)
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/worker", h.WorkerStatus)
		r.Get("/events/{eventId}", h.AdminStats)
		r.Delete("/events/{eventId}", h.ClearEvent)
		r.Put("/events/{eventId}/threshold", h.SetThreshold)
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "admission-service",
	}
	h.respondJSON(w, http.StatusOK, response)
}

type checkRequest struct {
	EventID          string   `json:"event_id" validate:"required"`
	ExternalPosition *float64 `json:"external_position,omitempty"`
}

func (h *HTTPHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "User identity is required", nil)
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	view, err := h.qSvc.Check(r.Context(), service.CheckInput{
		EventID:          req.EventID,
		UserID:           userID,
		ExternalPosition: req.ExternalPosition,
	})
	if err != nil {
		h.logger.Error(r.Context(), "Failed to check admission", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "Failed to check admission", err)
		return
	}

	h.respondJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "User identity is required", nil)
		return
	}

	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		h.respondError(w, http.StatusBadRequest, "Event ID is required", nil)
		return
	}

	view, err := h.qSvc.Status(r.Context(), eventID, userID)
	if err != nil {
		h.logger.Error(r.Context(), "Failed to get admission status", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "Failed to get admission status", err)
		return
	}

	h.respondJSON(w, http.StatusOK, view)
}

type heartbeatRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

func (h *HTTPHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "User identity is required", nil)
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	status, err := h.qSvc.Heartbeat(r.Context(), req.EventID, userID)
	if err != nil {
		h.logger.Error(r.Context(), "Failed to heartbeat", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "Failed to heartbeat", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": req.EventID,
		"status":   status,
	})
}

func (h *HTTPHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "User identity is required", nil)
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if err := h.qSvc.Leave(r.Context(), req.EventID, userID); err != nil {
		h.logger.Error(r.Context(), "Failed to leave", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "Failed to leave", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": req.EventID,
		"message":  "Successfully left the waiting room",
	})
}

func (h *HTTPHandler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.worker.GetStatus())
}

func (h *HTTPHandler) AdminStats(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if eventID == "" {
		h.respondError(w, http.StatusBadRequest, "Event ID is required", nil)
		return
	}

	stats, err := h.qSvc.Admin(r.Context(), eventID)
	if err != nil {
		h.logger.Error(r.Context(), "Failed to get event stats", "error", err, "event_id", eventID)
		h.respondError(w, http.StatusServiceUnavailable, "Failed to get event stats", err)
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) ClearEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if eventID == "" {
		h.respondError(w, http.StatusBadRequest, "Event ID is required", nil)
		return
	}

	if err := h.qSvc.Clear(r.Context(), eventID); err != nil {
		h.logger.Error(r.Context(), "Failed to clear event", "error", err, "event_id", eventID)
		h.respondError(w, http.StatusServiceUnavailable, "Failed to clear event", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": eventID,
		"message":  "Event state cleared",
	})
}

type setThresholdRequest struct {
	Threshold int64 `json:"threshold" validate:"required,gt=0"`
}

func (h *HTTPHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if eventID == "" {
		h.respondError(w, http.StatusBadRequest, "Event ID is required", nil)
		return
	}

	var req setThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if err := h.qSvc.SetThreshold(r.Context(), eventID, req.Threshold); err != nil {
		switch err {
		case service.ErrInvalidThreshold:
			h.respondError(w, http.StatusBadRequest, "Invalid threshold", err)
		default:
			h.logger.Error(r.Context(), "Failed to set threshold", "error", err, "event_id", eventID)
			h.respondError(w, http.StatusServiceUnavailable, "Failed to set threshold", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":  eventID,
		"threshold": req.Threshold,
	})
}

func (h *HTTPHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" || r.Header.Get("X-Admin-Key") != h.adminKey {
			h.respondError(w, http.StatusForbidden, "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helper functions

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error(context.Background(), "Failed to encode JSON response", "error", err)
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error": message,
		"code":  statusCode,
	}

	if err != nil {
		h.logger.Debug(context.Background(), "Error response", "message", message, "error", err.Error())
	}

	h.respondJSON(w, statusCode, response)
}
