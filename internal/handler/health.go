package handler

import (
	"net/http"
	"time"

	"instantin-core-api/internal/repository"
	"instantin-core-api/pkg/response"
)

// Handler contains shared HTTP handlers and their dependencies.
type Handler struct {
	ledger    repository.Ledger
	version   string
	startTime time.Time
}

// New creates a new handler.
func New(ledger repository.Ledger, version string) *Handler {
	return &Handler{
		ledger:    ledger,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Ready handles GET /api/v1/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ledgerStatus := "ok"
	if _, err := h.ledger.Stats(r.Context()); err != nil {
		ledgerStatus = "error: " + err.Error()
	}

	checks := []Check{
		{Name: "api", Status: "ok"},
		{Name: "ledger", Status: ledgerStatus},
	}

	allReady := true
	for _, check := range checks {
		if check.Status != "ok" {
			allReady = false
			break
		}
	}

	resp := ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}

	if !allReady {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response.OK(w, resp)
}

// Status handles GET /api/status - a compact uptime probe for monitors.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{
		"service":        "instantin-core-api",
		"status":         "up",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}
