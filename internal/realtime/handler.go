package realtime

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/redact"
)

// TaskIDParam is the chi URL parameter holding the task id.
const TaskIDParam = "task_id"

// Handler upgrades HTTP requests on /ws/tasks/{task_id} and runs a session
// on each connection.
type Handler struct {
	protocol *Protocol
	upgrader websocket.Upgrader
	opts     ConnOptions
	logger   *slog.Logger
}

// NewHandler creates the WebSocket endpoint. allowedOrigins lists browser
// origins allowed to connect; "*" allows any.
func NewHandler(protocol *Protocol, opts ConnOptions, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		protocol: protocol,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		opts:   opts,
		logger: logger.With("component", "websocket_handler"),
	}
}

// ServeHTTP implements http.Handler. It blocks for the lifetime of the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	rawTaskID := chi.URLParam(r, TaskIDParam)
	token := r.URL.Query().Get("token")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		log.Warn("websocket upgrade failed", "url", redact.URL(r.URL), "error", err)
		return
	}

	connID := uuid.NewString()
	log.Debug("websocket connection accepted",
		"conn_id", connID,
		"url", redact.URL(r.URL),
		"remote_addr", r.RemoteAddr)

	conn := NewConn(ws, connID, h.opts, log)
	h.protocol.Run(r.Context(), conn, rawTaskID, token)
}

// originChecker allows requests without an Origin header (non-browser
// clients), same-host origins and the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := slices.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
