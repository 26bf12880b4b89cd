package realtime_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/taskstream-api/internal/config"
	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/mocks"
	"github.com/phrazzld/taskstream-api/internal/realtime"
	"github.com/phrazzld/taskstream-api/internal/service"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"github.com/phrazzld/taskstream-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveServer struct {
	url      string
	registry *realtime.Registry
	tokens   auth.JWTService
}

// newLiveServer serves the comment stream over httptest. rates overrides the
// default inbound frame limit.
func newLiveServer(t *testing.T, rates ...realtime.RateSettings) *liveServer {
	t.Helper()
	limit := realtime.RateSettings{FramesPerSecond: 100, Burst: 100}
	if len(rates) > 0 {
		limit = rates[0]
	}

	tokens, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:                   "realtime-test-secret-that-is-long-enough",
		TokenLifetimeMinutes:        5,
		RefreshTokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	users := &mocks.MockUserStore{Users: map[int64]*domain.User{
		1: {ID: 1, Email: "alice@example.com"},
		2: {ID: 2, Email: "bob@example.com"},
	}}
	tasks := &mocks.MockTaskStore{
		GetByIDFn: func(_ context.Context, id int64) (*domain.Task, error) {
			if id != 7 {
				return nil, store.ErrTaskNotFound
			}
			return &domain.Task{ID: 7, Title: "Ship it", Status: domain.TaskStatusInProgress}, nil
		},
	}
	var mu sync.Mutex
	var nextID int64
	comments := &mocks.MockCommentStore{
		CreateFn: func(_ context.Context, c *domain.Comment) error {
			mu.Lock()
			defer mu.Unlock()
			nextID++
			c.ID = nextID
			c.User = &domain.UserSummary{ID: c.UserID, Email: users.Users[c.UserID].Email}
			return nil
		},
	}

	registry := realtime.NewRegistry(nil)
	protocol := realtime.NewProtocol(
		registry,
		auth.NewPrincipalResolver(tokens, users),
		service.NewTaskService(tasks, nil, nil),
		service.NewCommentService(comments, tasks, service.DefaultBreakerSettings(), nil),
		limit,
		nil,
	)
	opts := realtime.DefaultConnOptions()
	opts.WriteWait = time.Second

	r := chi.NewRouter()
	r.Handle("/ws/tasks/{task_id}", realtime.NewHandler(protocol, opts, []string{"*"}, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		registry.CloseAll()
		srv.Close()
	})

	return &liveServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		registry: registry,
		tokens:   tokens,
	}
}

func (s *liveServer) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	return tok
}

func (s *liveServer) dial(t *testing.T, taskID, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"/ws/tasks/"+taskID+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func readCloseCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	return closeErr.Code
}

func TestHandler_CommentRoundTrip(t *testing.T) {
	s := newLiveServer(t)

	alice := s.dial(t, "7", s.token(t, 1))
	require.Eventually(t, func() bool { return s.registry.RoomSize(7) == 1 }, 2*time.Second, 5*time.Millisecond)
	bob := s.dial(t, "7", s.token(t, 2))

	joined := readMessage(t, alice)
	assert.Equal(t, "user_joined", joined["type"])
	assert.Equal(t, "bob@example.com joined the discussion", joined["message"])

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"comment","content":" first! "}`)))

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readMessage(t, conn)
		require.Equal(t, "new_comment", msg["type"])
		comment := msg["comment"].(map[string]any)
		assert.Equal(t, "first!", comment["content"])
		assert.EqualValues(t, 7, comment["task_id"])
		assert.True(t, strings.HasSuffix(comment["created_at"].(string), "Z"))
	}

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","is_typing":true}`)))
	typing := readMessage(t, alice)
	assert.Equal(t, "user_typing", typing["type"])
	assert.Equal(t, "bob@example.com", typing["user_email"])

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`nope`)))
	reply := readMessage(t, bob)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "invalid JSON format", reply["message"])

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool { return s.registry.RoomSize(7) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestHandler_RejectsInvalidToken(t *testing.T) {
	s := newLiveServer(t)

	conn := s.dial(t, "7", "not-a-jwt")

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
	assert.Equal(t, 0, s.registry.TotalConnections())
}

func TestHandler_RejectsUnknownTask(t *testing.T) {
	s := newLiveServer(t)

	conn := s.dial(t, "404", s.token(t, 1))

	assert.Equal(t, websocket.CloseUnsupportedData, readCloseCode(t, conn))
	assert.Equal(t, 0, s.registry.TotalConnections())
}

func TestHandler_BurstOfBadFramesKeepsConnection(t *testing.T) {
	// Unthrottled, so every bad frame queues a reply and the burst can
	// outrun the send queue.
	s := newLiveServer(t, realtime.RateSettings{FramesPerSecond: 1e6, Burst: 1e6})
	conn := s.dial(t, "7", s.token(t, 1))
	require.Eventually(t, func() bool { return s.registry.RoomSize(7) == 1 }, 2*time.Second, 5*time.Millisecond)

	types := make(chan string, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var m map[string]any
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			if msgType, _ := m["type"].(string); msgType == "new_comment" {
				types <- msgType
			}
		}
	}()

	burst := realtime.DefaultConnOptions().SendBuffer + 100
	for i := 0; i < burst; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	}

	// Replies to the burst may still be draining; retry until the comment
	// comes back.
	deadline := time.After(3 * time.Second)
	retry := time.NewTicker(100 * time.Millisecond)
	defer retry.Stop()
	for delivered := false; !delivered; {
		select {
		case <-retry.C:
			require.NoError(t, conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"comment","content":"still here"}`)))
		case <-types:
			delivered = true
		case err := <-readErr:
			t.Fatalf("connection dropped after burst: %v", err)
		case <-deadline:
			t.Fatal("no new_comment after burst")
		}
	}
	assert.Equal(t, 1, s.registry.RoomSize(7))
}
