package main

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/taskstream-api/internal/config"
	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/mocks"
	"github.com/phrazzld/taskstream-api/internal/realtime"
	"github.com/phrazzld/taskstream-api/internal/service"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:                   0,
			LogLevel:               "error",
			CORSAllowedOrigins:     []string{"http://localhost:3000"},
			RateLimitRequests:      0,
			RateLimitWindowSeconds: 60,
			ShutdownTimeoutSeconds: 2,
		},
		Database: config.DatabaseConfig{URL: "postgres://localhost/test", MaxOpenConns: 1},
		Auth: config.AuthConfig{
			JWTSecret:                     "thisisasecretkeythatis32charslong!!",
			TokenLifetimeMinutes:          30,
			RefreshTokenLifetimeMinutes:   60,
			WebSocketTokenLifetimeMinutes: 15,
			BcryptCost:                    4,
		},
		Realtime: config.RealtimeConfig{
			WriteTimeoutSeconds: 1,
			PongTimeoutSeconds:  5,
			SendBufferSize:      8,
			MaxMessageBytes:     4096,
			FramesPerSecond:     50,
			FrameBurst:          50,
		},
	}
}

// newTestApplication mirrors newApplication with in-memory stores.
func newTestApplication(t *testing.T) (*application, sqlmock.Sqlmock) {
	t.Helper()
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)

	jwtService, err := auth.NewJWTService(cfg.Auth)
	require.NoError(t, err)

	users := &mocks.MockUserStore{Users: map[int64]*domain.User{
		1: {ID: 1, Email: "ada@example.com", HashedPassword: "x"},
	}}
	tasks := &mocks.MockTaskStore{}
	comments := &mocks.MockCommentStore{}

	app := &application{
		config:       cfg,
		logger:       logger,
		db:           db,
		userStore:    users,
		taskStore:    tasks,
		commentStore: comments,
		jwtService:   jwtService,
	}
	app.userService = service.NewUserService(users, auth.NewBcryptVerifier(), logger)
	app.taskService = service.NewTaskService(tasks, db, logger)
	app.commentService = service.NewCommentService(comments, tasks, service.DefaultBreakerSettings(), logger)
	app.registry = realtime.NewRegistry(logger)
	app.protocol = realtime.NewProtocol(
		app.registry,
		auth.NewPrincipalResolver(jwtService, users),
		app.taskService,
		app.commentService,
		realtime.RateSettings{FramesPerSecond: 50, Burst: 50},
		logger,
	)
	return app, sqlMock
}

func TestConnOptions(t *testing.T) {
	t.Parallel()
	opts := connOptions(testConfig().Realtime)

	assert.Equal(t, time.Second, opts.WriteWait)
	assert.Equal(t, 5*time.Second, opts.PongWait)
	assert.Equal(t, 8, opts.SendBuffer)
	assert.Equal(t, int64(4096), opts.MaxMessageBytes)
}

func TestSetupRouter(t *testing.T) {
	app, _ := newTestApplication(t)
	router := app.setupRouter()

	token, err := app.jwtService.GenerateToken(context.Background(), 1)
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		auth       bool
		wantStatus int
	}{
		{name: "banner", method: http.MethodGet, path: "/", wantStatus: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "tasks require auth", method: http.MethodGet, path: "/tasks", wantStatus: http.StatusUnauthorized},
		{name: "tasks with token", method: http.MethodGet, path: "/tasks", auth: true, wantStatus: http.StatusOK},
		{name: "stats", method: http.MethodGet, path: "/tasks/stats/overview", auth: true, wantStatus: http.StatusOK},
		{name: "unknown task", method: http.MethodGet, path: "/tasks/77", auth: true, wantStatus: http.StatusNotFound},
		{name: "comments of unknown task", method: http.MethodGet, path: "/tasks/77/comments", auth: true,
			wantStatus: http.StatusNotFound},
		{name: "me", method: http.MethodGet, path: "/auth/me", auth: true, wantStatus: http.StatusOK},
		{name: "websocket token", method: http.MethodGet, path: "/auth/websocket-token", auth: true,
			wantStatus: http.StatusOK},
		{name: "login is public", method: http.MethodPost, path: "/auth/login",
			body: `{"email":"nobody@example.com","password":"secret1"}`, wantStatus: http.StatusUnauthorized},
		{name: "websocket requires upgrade", method: http.MethodGet, path: "/ws/tasks/1?token=x",
			wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			req := httptest.NewRequest(tc.method, tc.path, body)
			if tc.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

// recordingPeer leaves the registry a little after it is closed, the way a
// session does once its read loop notices the closed transport.
type recordingPeer struct {
	id       string
	registry *realtime.Registry
	closed   chan struct{}
}

func (p *recordingPeer) ID() string          { return p.id }
func (p *recordingPeer) Send(_ []byte) error { return nil }
func (p *recordingPeer) Close() error {
	close(p.closed)
	go func() {
		time.Sleep(50 * time.Millisecond)
		p.registry.Leave(p.id)
	}()
	return nil
}

func TestServe_GracefulShutdown(t *testing.T) {
	app, sqlMock := newTestApplication(t)
	sqlMock.ExpectClose()

	peer := &recordingPeer{id: "conn-1", registry: app.registry, closed: make(chan struct{})}
	require.NoError(t, app.registry.Join(peer, 1, 1, "ada@example.com"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &http.Server{Addr: ln.Addr().String(), Handler: app.setupRouter()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, server, func() error { return server.Serve(ln) }) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}

	select {
	case <-peer.closed:
	default:
		t.Fatal("registered peer was not closed on shutdown")
	}
	assert.Zero(t, app.registry.TotalConnections(), "database closed before sessions left")
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

// stuckPeer never leaves the registry.
type stuckPeer struct{ id string }

func (p *stuckPeer) ID() string          { return p.id }
func (p *stuckPeer) Send(_ []byte) error { return nil }
func (p *stuckPeer) Close() error        { return nil }

func TestServe_DrainIsBoundedByShutdownTimeout(t *testing.T) {
	app, sqlMock := newTestApplication(t)
	app.config.Server.ShutdownTimeoutSeconds = 1
	sqlMock.ExpectClose()
	require.NoError(t, app.registry.Join(&stuckPeer{id: "conn-stuck"}, 1, 1, "ada@example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := &http.Server{Addr: "127.0.0.1:0"}
	start := time.Now()
	err := app.serve(ctx, server, func() error { return http.ErrServerClosed })
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, app.registry.TotalConnections())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestServe_ListenFailure(t *testing.T) {
	app, sqlMock := newTestApplication(t)
	sqlMock.ExpectClose()
	server := &http.Server{Addr: "127.0.0.1:0"}

	err := app.serve(context.Background(), server, func() error { return net.ErrClosed })

	assert.ErrorIs(t, err, net.ErrClosed)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestSlogGooseLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := &slogGooseLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Printf("OK   %s\n", "00001_create_users.sql")
	l.Fatalf("failed to apply %d migrations", 2)

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "00001_create_users.sql")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "failed to apply 2 migrations")
}

func TestRunMigrations_RejectsUnknownCommand(t *testing.T) {
	t.Parallel()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func(db *sql.DB) { _ = db.Close() }(db)

	err = runMigrations(context.Background(), db, "drop-everything", slog.Default())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported migration command")
}
