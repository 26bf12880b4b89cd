package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 10 * time.Second
	drainPollInterval = 10 * time.Millisecond
)

// startHTTPServer serves router until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return app.serve(ctx, server, server.ListenAndServe)
}

// serve runs listen and shuts server down when ctx is done. Hijacked
// WebSocket connections are not tracked by Shutdown, so the registry closes
// them explicitly.
func (app *application) serve(ctx context.Context, server *http.Server, listen func() error) error {
	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", server.Addr)
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err, ok := <-serveErr:
		if ok {
			app.logger.Error("server failed", "error", err)
			listenErr = err
		}
	}

	timeout := time.Duration(app.config.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if app.registry != nil {
		app.registry.CloseAll()
		app.drainSessions(shutdownCtx)
	}
	app.cleanup()

	if listenErr != nil {
		return listenErr
	}
	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}
	app.logger.Info("server shutdown completed")
	return nil
}

// drainSessions waits for closed WebSocket sessions to leave the registry so
// that in-flight comment writes finish before the database closes.
func (app *application) drainSessions(ctx context.Context) {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		remaining := app.registry.TotalConnections()
		if remaining == 0 {
			return
		}
		select {
		case <-ctx.Done():
			app.logger.Warn("closing database with sessions still open", "sessions", remaining)
			return
		case <-ticker.C:
		}
	}
}
