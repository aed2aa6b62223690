package handler

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/ylxai/Hafiportrait-sub001/internal/service"
)

// HTTPHandler serves the plain HTTP endpoints of the relay.
type HTTPHandler struct {
	service    service.RelayService
	version    string
	instanceID string
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc service.RelayService, version, instanceID string) *HTTPHandler {
	return &HTTPHandler{
		service:    svc,
		version:    version,
		instanceID: instanceID,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Connections int64   `json:"connections"`
	Version     string  `json:"version"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Rooms       map[string]int `json:"rooms"`
	Connections int            `json:"connections"`
	InstanceID  string         `json:"instance_id"`
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Health()
	writeJSON(w, HealthResponse{
		Status:      snap.Status,
		Timestamp:   snap.Timestamp,
		Uptime:      snap.Uptime,
		Connections: snap.Connections,
		Version:     h.version,
	})
}

// GetStats handles GET /stats
func (h *HTTPHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.Stats()
	writeJSON(w, StatsResponse{
		Rooms:       stats.Rooms,
		Connections: stats.Connections,
		InstanceID:  h.instanceID,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
