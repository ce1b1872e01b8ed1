package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-dtu/internal/device"
)

const (
	// healthCheckTimeout bounds all component checks of one health request.
	healthCheckTimeout = 3 * time.Second

	maxSnapshotLimit = 200
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID, s.accessLog, s.recoverPanic, s.cors)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices/{id}", func(r chi.Router) {
			r.Get("/current", s.handleGetCurrent)
			r.Get("/snapshots", s.handleListSnapshots)
		})
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth runs every component check and reports the worst result.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Version: s.version}
	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
	}

	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			resp.Components[c.Name] = err.Error()
			if c.Critical {
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Components[c.Name] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleGetCurrent returns the current snapshot of a device.
func (s *Server) handleGetCurrent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := s.store.GetCurrent(r.Context(), id)
	if errors.Is(err, device.ErrSnapshotNotFound) {
		writeError(w, r, http.StatusNotFound, ErrCodeNoCurrentSnapshot, "no current snapshot for device")
		return
	}
	if err != nil {
		s.logger.Error("reading current snapshot failed", "device_message_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, ErrCodeStoreFailure, "failed to read snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleListSnapshots returns the most recent snapshots of a device.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSnapshotLimit {
			writeError(w, r, http.StatusBadRequest, ErrCodeInvalidLimit, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	snaps, err := s.store.ListRecent(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing snapshots failed", "device_message_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, ErrCodeStoreFailure, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []device.Snapshot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_message_id": id,
		"snapshots":         snaps,
		"count":             len(snaps),
	})
}
