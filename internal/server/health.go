package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK       = "ok"
	healthStatusNotReady = "not ready"
)

const pingTimeout = 2 * time.Second

// HealthChecker backs the Kubernetes-style probe endpoints. Liveness only
// proves the process is serving; readiness additionally pings the database.
type HealthChecker struct {
	ready atomic.Bool
	db    Pinger
}

// NewHealthChecker creates a HealthChecker. db may be nil, in which case
// readiness skips the database check.
func NewHealthChecker(db Pinger) *HealthChecker {
	h := &HealthChecker{db: db}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness state. Shutdown sets it to false so load
// balancers drain the instance before connections are closed.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// healthResponse is the probe JSON shape.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler serves /healthz.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: healthStatusOK})
	}
}

// ReadinessHandler serves /readyz.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allOK := true

		if h.ready.Load() {
			checks["ready"] = healthStatusOK
		} else {
			checks["ready"] = healthStatusNotReady
			allOK = false
		}

		if h.db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()
			if err := h.db.Ping(ctx); err != nil {
				checks["database"] = err.Error()
				allOK = false
			} else {
				checks["database"] = healthStatusOK
			}
		}

		status := http.StatusOK
		response := healthResponse{Status: healthStatusOK, Checks: checks}
		if !allOK {
			status = http.StatusServiceUnavailable
			response.Status = healthStatusNotReady
		}
		writeJSON(w, status, response)
	}
}
