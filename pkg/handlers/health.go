package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// ReadyResponse reports whether the service can take traffic.
type ReadyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadinessCheck returns nil when dependencies are usable.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler handles health check, ping and readiness endpoints.
type HealthHandler struct {
	cfg    *config.Config
	ready  ReadinessCheck
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. A nil ready check always
// reports ready.
func NewHealthHandler(cfg *config.Config, ready ReadinessCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, ready: ready, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /ready", h.Ready)
}

// Health handles GET /health requests.
// Liveness only: it never touches the database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "cutroom-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// Ready handles GET /ready requests.
// Returns 503 while the database is unreachable or migrations are incomplete.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			if werr := WriteJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "unavailable", Error: err.Error()}); werr != nil {
				h.logger.Error("Failed to encode ready response", zap.Error(werr))
			}
			return
		}
	}

	if err := WriteJSON(w, http.StatusOK, ReadyResponse{Status: "ready"}); err != nil {
		h.logger.Error("Failed to encode ready response", zap.Error(err))
	}
}
