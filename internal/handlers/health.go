package handlers

import (
	"net/http"
	"runtime"
	"time"

	"heic-to-jpg/internal/startup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Ready        bool   `json:"ready"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	RuntimeError string `json:"runtimeError,omitempty"`

	// Batch summary
	Processing bool `json:"processing"`
	Pending    int  `json:"pending"`
	Converted  int  `json:"converted"`
	Failed     int  `json:"failed"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. A missing decoder
// runtime degrades the service but the batch API stays up.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.batch.Stats()

	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Processing:   h.batch.Processing(),
		Pending:      stats.Pending,
		Converted:    stats.Success,
		Failed:       stats.Failed,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if err := h.runtimeErr(); err != nil {
		response.Status = statusDegraded
		response.Ready = false
		response.RuntimeError = err.Error()
	}

	writeJSONStatusCode(w, response, http.StatusOK)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the decoder runtime is available
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.runtimeErr() != nil {
		writeJSONStatusCode(w, map[string]string{"status": "not_ready"}, http.StatusServiceUnavailable)
		return
	}
	writeJSONStatusCode(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatusCode(w, startup.GetBuildInfo(), http.StatusOK)
}

// MetricsHandler serves the default Prometheus registry, with OpenMetrics
// negotiation enabled.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
