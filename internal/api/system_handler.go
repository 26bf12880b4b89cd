package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/taskstream-api/internal/api/shared"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnectionCounter reports live comment stream usage.
type ConnectionCounter interface {
	TotalConnections() int
	RoomCount() int
}

// SystemHandler serves the banner and health endpoints.
type SystemHandler struct {
	db      Pinger
	streams ConnectionCounter
	version string
	logger  *slog.Logger
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(db Pinger, streams ConnectionCounter, version string, logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{
		db:      db,
		streams: streams,
		version: version,
		logger:  logger.With(slog.String("component", "system_handler")),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Connections int    `json:"websocket_connections"`
	Rooms       int    `json:"websocket_rooms"`
}

// Root handles GET /.
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"message": "taskstream API",
		"version": h.version,
	})
}

// Health handles GET /health. It returns 503 when the database is unreachable.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Database: "up"}
	if h.streams != nil {
		resp.Connections = h.streams.TotalConnections()
		resp.Rooms = h.streams.RoomCount()
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("database health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		}
	}

	shared.RespondWithJSON(w, r, status, resp)
}
