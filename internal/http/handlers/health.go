package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/http/respond"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler returns uptime and the state of the account store.
type HealthHandler struct {
	startedAt time.Time
	ready     ReadinessCheck
	log       logrus.FieldLogger
}

// NewHealthHandler creates a health endpoint handler. ready may be nil.
func NewHealthHandler(startedAt time.Time, ready ReadinessCheck, log logrus.FieldLogger) *HealthHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HealthHandler{startedAt: startedAt, ready: ready, log: log}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handle)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":   "ok",
		"database": "ok",
		"uptime":   time.Since(h.startedAt).Truncate(time.Second).String(),
	}
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.log.WithError(err).Warn("health: database check failed")
			body["status"] = "degraded"
			body["database"] = "unavailable"
			respond.JSON(w, http.StatusServiceUnavailable, "degraded", body)
			return
		}
	}
	respond.JSON(w, http.StatusOK, "ok", body)
}
