package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/logx"
)

const (
	healthTimeout = 2 * time.Second
	defaultLast   = 100
	maxLast       = 10000
)

// Handlers serves the ops endpoints.
type Handlers struct {
	Logger logx.Logger
	orders orderInspector
	health HealthFunc
}

// New creates Handlers. health may be nil (always healthy).
func New(logger logx.Logger, orders orderInspector, health HealthFunc) *Handlers {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Handlers{Logger: logger, orders: orders, health: health}
}

// Ping handles GET /ping and returns 200 with {"message":"pong"}.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.Logger, w, r, http.StatusOK, map[string]string{"message": "pong"})
}

// HealthcheckHead handles HEAD /healthcheck: 204 when the store answers and
// no watcher halted, 503 otherwise.
func (h *Handlers) HealthcheckHead(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.Logger.Warn("healthcheck failed", logx.String("req_id", reqID(r.Context())), logx.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Order handles GET /orders/{orderNo}: every document of one order.
func (h *Handlers) Order(w http.ResponseWriter, r *http.Request) {
	orderNo := strings.TrimSpace(chi.URLParam(r, "orderNo"))
	if orderNo == "" {
		writeError(h.Logger, w, r, http.StatusBadRequest, "orderNo is required")
		return
	}
	report, err := h.orders.Dump(r.Context(), orderNo)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.Logger, w, r, http.StatusNotFound, "order not found")
	case err != nil:
		h.storeError(w, r, err)
	default:
		writeJSON(h.Logger, w, r, http.StatusOK, report)
	}
}

// Stats handles GET /stats?last=N: assignment delay distribution.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	last, err := intQuery(r, "last", defaultLast)
	if err != nil || last < 0 || last > maxLast {
		writeError(h.Logger, w, r, http.StatusBadRequest, "last must be an integer in [0, 10000]")
		return
	}
	stats, err := h.orders.Stats(r.Context(), last)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(h.Logger, w, r, http.StatusOK, stats)
}

// NotFound returns a JSON 404 error for unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(h.Logger, w, r, http.StatusNotFound, "route not found")
}

func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.Error("store query failed", logx.String("req_id", reqID(r.Context())), logx.Err(err))
	if errors.Is(err, apperr.ErrStoreUnavailable) {
		writeError(h.Logger, w, r, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeError(h.Logger, w, r, http.StatusInternalServerError, "internal error")
}
