package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskstream-api/internal/config"
	"github.com/phrazzld/taskstream-api/internal/platform/postgres"
	"github.com/phrazzld/taskstream-api/internal/realtime"
	"github.com/phrazzld/taskstream-api/internal/service"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// application holds the shared dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	userStore    store.UserStore
	taskStore    store.TaskStore
	commentStore store.CommentStore

	jwtService     auth.JWTService
	userService    service.UserService
	taskService    service.TaskService
	commentService service.CommentService

	registry *realtime.Registry
	protocol *realtime.Protocol
}

// newApplication wires stores, services and the live comment registry.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes,
		"websocket_token_lifetime_minutes", cfg.Auth.WebSocketTokenLifetimeMinutes)

	app.userStore = postgres.NewPostgresUserStore(db, cfg.Auth.BcryptCost, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.commentStore = postgres.NewPostgresCommentStore(db, logger)

	app.userService = service.NewUserService(app.userStore, auth.NewBcryptVerifier(), logger)
	app.taskService = service.NewTaskService(app.taskStore, db, logger)
	app.commentService = service.NewCommentService(
		app.commentStore,
		app.taskStore,
		service.DefaultBreakerSettings(),
		logger,
	)

	app.registry = realtime.NewRegistry(logger)
	app.protocol = realtime.NewProtocol(
		app.registry,
		auth.NewPrincipalResolver(app.jwtService, app.userStore),
		app.taskService,
		app.commentService,
		realtime.RateSettings{
			FramesPerSecond: cfg.Realtime.FramesPerSecond,
			Burst:           cfg.Realtime.FrameBurst,
		},
		logger,
	)

	logger.Info("application initialized")
	return app, nil
}

// connOptions maps the realtime config onto transport options.
func connOptions(cfg config.RealtimeConfig) realtime.ConnOptions {
	return realtime.ConnOptions{
		WriteWait:       time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		PongWait:        time.Duration(cfg.PongTimeoutSeconds) * time.Second,
		SendBuffer:      cfg.SendBufferSize,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases resources after the HTTP server has stopped.
func (app *application) cleanup() {
	if app.db != nil {
		closeDatabase(app.db, app.logger)
	}
	app.logger.Info("application shutdown completed")
}
