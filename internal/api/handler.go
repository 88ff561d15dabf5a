package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/herald/internal/config"
	"github.com/gyaneshwarpardhi/herald/internal/gate"
	"github.com/gyaneshwarpardhi/herald/internal/ingest"
)

// Reloader re-applies a freshly loaded configuration to the running stages.
type Reloader interface {
	Apply(cfg *config.Config) error
}

// Utilization reports bus queue pressure for the readiness probe.
type Utilization interface {
	Utilization() float64
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	log     *slog.Logger
	submit  ingest.Submitter
	loader  *config.Loader
	reload  Reloader
	gate    *gate.Gate
	busutil Utilization
	mux     *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(log *slog.Logger, submit ingest.Submitter, loader *config.Loader, reload Reloader, g *gate.Gate, busutil Utilization) http.Handler {
	h := &Handler{
		log:     log,
		submit:  submit,
		loader:  loader,
		reload:  reload,
		gate:    g,
		busutil: busutil,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/notifications", h.ingestNotification)
	h.mux.HandleFunc("GET /v1/rules", h.listRules)
	h.mux.HandleFunc("POST /v1/rules/reload", h.reloadRules)
	h.mux.HandleFunc("GET /v1/deferred", h.listDeferred)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(log, h.mux)
}

// POST /v1/notifications — webhook ingest for sources without a broker.
func (h *Handler) ingestNotification(w http.ResponseWriter, r *http.Request) {
	var raw ingest.RawNotification
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	ev, err := ingest.Normalize(&raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.submit.Submit(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"event_id": ev.ID,
		"type":     ev.Type,
		"priority": ev.Priority().String(),
	})
}

// GET /v1/rules — current rule set and defaults.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":          cfg.Version,
		"default_priority": cfg.DefaultPriority,
		"rules":            cfg.Rules,
	})
}

// POST /v1/rules/reload — force a reload from disk and apply it.
func (h *Handler) reloadRules(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.reload.Apply(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":    true,
		"rules_count": len(cfg.Rules),
	})
}

// GET /v1/deferred — announcements parked by the timing gate.
func (h *Handler) listDeferred(w http.ResponseWriter, r *http.Request) {
	items := h.gate.Deferred()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if any subscriber queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.busutil.Utilization()
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
