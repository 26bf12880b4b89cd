package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/taskstream-api/internal/api"
	apiMiddleware "github.com/phrazzld/taskstream-api/internal/api/middleware"
	"github.com/phrazzld/taskstream-api/internal/realtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter registers every route. The WebSocket route sits outside the
// metrics middleware so long-lived streams do not skew request latencies.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(apiMiddleware.CORS(app.config.Server.CORSAllowedOrigins))

	authHandler := api.NewAuthHandler(
		app.userService,
		app.jwtService,
		time.Duration(app.config.Auth.WebSocketTokenLifetimeMinutes)*time.Minute,
		app.logger,
	)
	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	commentHandler := api.NewCommentHandler(app.commentService, app.logger)
	systemHandler := api.NewSystemHandler(app.db, app.registry, version, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	streamHandler := realtime.NewHandler(
		app.protocol,
		connOptions(app.config.Realtime),
		app.config.Server.CORSAllowedOrigins,
		app.logger,
	)

	r.Group(func(r chi.Router) {
		r.Use(apiMiddleware.Metrics)

		r.Get("/", systemHandler.Root)
		r.Get("/health", systemHandler.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RateLimitByIP(
					app.config.Server.RateLimitRequests,
					time.Duration(app.config.Server.RateLimitWindowSeconds)*time.Second,
				))
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.RefreshToken)
			})

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Get("/me", authHandler.Me)
				r.Get("/websocket-token", authHandler.WebSocketToken)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/", taskHandler.ListTasks)
			r.Post("/", taskHandler.CreateTask)
			r.Get("/stats/overview", taskHandler.Stats)

			r.Route("/{"+api.TaskIDParam+"}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Put("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)

				r.Get("/comments", commentHandler.ListComments)
				r.Post("/comments", commentHandler.CreateComment)
				r.Delete("/comments/{"+api.CommentIDParam+"}", commentHandler.DeleteComment)
			})
		})
	})

	r.Get("/ws/tasks/{"+realtime.TaskIDParam+"}", streamHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
