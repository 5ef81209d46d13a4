package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/manager"
)

// Status constants.
const (
	StatusHealthy   = "healthy"
	StatusIdle      = "idle"
	StatusUnhealthy = "unhealthy"
)

// ClientCounter reports connected streaming clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthHandler serves health, status, descriptor and version endpoints.
type HealthHandler struct {
	engine    Engine
	clients   ClientCounter
	logger    *logging.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. clients may be nil.
func NewHealthHandler(engine Engine, clients ClientCounter, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{
		engine:    engine,
		clients:   clients,
		logger:    logger.WithFields("handler", "health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// StatusResponse represents a detailed status response.
type StatusResponse struct {
	Service   ServiceInfo    `json:"service"`
	Scanner   manager.Status `json:"scanner"`
	Clients   int            `json:"websocket_clients"`
	Timestamp time.Time      `json:"timestamp"`
}

// ServiceInfo contains service-related information.
type ServiceInfo struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	StartTime  time.Time `json:"start_time"`
	Uptime     string    `json:"uptime"`
	PID        int       `json:"pid"`
	GoVersion  string    `json:"go_version"`
	Goroutines int       `json:"goroutines"`
}

// VersionResponse represents version information.
type VersionResponse struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	BuildTime string    `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports healthy while the manager runs, idle when it is stopped and
// unhealthy (503) when the scanner was never initialized.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    map[string]string{},
	}

	status, ok := h.engine.Status()
	switch {
	case !ok:
		resp.Status = StatusUnhealthy
		resp.Checks["scanner"] = "not initialized"
		h.logger.Warn("Health check failed", "reason", "scanner not initialized")
	case status.Running:
		resp.Checks["scanner"] = "running"
	default:
		resp.Status = StatusIdle
		resp.Checks["scanner"] = "stopped"
	}

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, resp)
}

// Status returns the manager snapshot and service information.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, _ := h.engine.Status()

	resp := StatusResponse{
		Service: ServiceInfo{
			Name:       "pathorama",
			Version:    version,
			StartTime:  h.startTime,
			Uptime:     time.Since(h.startTime).Round(time.Second).String(),
			PID:        os.Getpid(),
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
		},
		Scanner:   status,
		Timestamp: time.Now().UTC(),
	}
	if h.clients != nil {
		resp.Clients = h.clients.ClientCount()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Descriptor returns the plugin capability descriptor.
func (h *HealthHandler) Descriptor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.engine.Describe())
}

// Version returns build information.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, VersionResponse{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Timestamp: time.Now().UTC(),
	})
}

// Build information, set via ldflags through SetBuildInfo.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// SetBuildInfo sets build information (called by main package).
func SetBuildInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
