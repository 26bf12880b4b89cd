package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	registry *Registry
	protocol *Protocol
	tasks    *fakeTasks
	comments *fakeComments
}

func newHarness(t *testing.T, rates RateSettings) *harness {
	t.Helper()
	h := &harness{
		registry: NewRegistry(nil),
		tasks: &fakeTasks{tasks: map[int64]*domain.Task{
			7: {ID: 7, Title: "Write release notes", Status: domain.TaskStatusInProgress},
		}},
		comments: &fakeComments{},
	}
	resolver := &fakeResolver{principals: map[string]*auth.Principal{
		"alice-token": {UserID: 1, Email: "alice@example.com"},
		"bob-token":   {UserID: 2, Email: "bob@example.com"},
	}}
	h.protocol = NewProtocol(h.registry, resolver, h.tasks, h.comments, rates, nil)
	return h
}

func defaultRates() RateSettings {
	return RateSettings{FramesPerSecond: 1000, Burst: 1000}
}

// start runs a session in the background and returns a channel closed when Run returns.
func (h *harness) start(ctx context.Context, tr *fakeTransport, taskID, token string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.protocol.Run(ctx, tr, taskID, token)
	}()
	return done
}

// join starts a session and waits until it is registered.
func (h *harness) join(t *testing.T, id, token string) (*fakeTransport, <-chan struct{}) {
	t.Helper()
	tr := newFakeTransport(id)
	done := h.start(context.Background(), tr, "7", token)
	require.Eventually(t, func() bool {
		_, ok := h.registry.Session(id)
		return ok
	}, waitFor, tick)
	return tr, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("session did not end")
	}
}

func ofType(t *testing.T, p *fakePeer, msgType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range p.messages(t) {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func waitForType(t *testing.T, p *fakePeer, msgType string, n int) []map[string]any {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(ofType(t, p, msgType)) >= n
	}, waitFor, tick, "waiting for %d %s on %s", n, msgType, p.id)
	return ofType(t, p, msgType)
}

func TestSession_RejectsBadCredentials(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "invalid token", token: "forged"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, defaultRates())
			tr := newFakeTransport("c1")

			waitDone(t, h.start(context.Background(), tr, "7", tc.token))

			assert.Equal(t, websocket.ClosePolicyViolation, tr.code())
			assert.Equal(t, 0, h.registry.TotalConnections())
			assert.Empty(t, tr.frames())
		})
	}
}

func TestSession_RejectsUnknownTask(t *testing.T) {
	tests := []struct {
		name   string
		taskID string
	}{
		{name: "absent task", taskID: "99"},
		{name: "non-numeric task", taskID: "abc"},
		{name: "empty task", taskID: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, defaultRates())
			tr := newFakeTransport("c1")

			waitDone(t, h.start(context.Background(), tr, tc.taskID, "alice-token"))

			assert.Equal(t, websocket.CloseUnsupportedData, tr.code())
			assert.Equal(t, 0, h.registry.TotalConnections())
		})
	}
}

func TestSession_PanicDuringHandshakeClosesTransport(t *testing.T) {
	h := newHarness(t, defaultRates())
	h.tasks.panics = true
	tr := newFakeTransport("c1")

	assert.Panics(t, func() { h.protocol.Run(context.Background(), tr, "7", "alice-token") })

	assert.True(t, tr.isClosed())
	assert.Equal(t, 0, h.registry.TotalConnections())
}

func TestSession_TaskLookupFailureClosesWithInternalError(t *testing.T) {
	h := newHarness(t, defaultRates())
	h.tasks.err = errors.New("db down")
	tr := newFakeTransport("c1")

	waitDone(t, h.start(context.Background(), tr, "7", "alice-token"))

	assert.Equal(t, websocket.CloseInternalServerErr, tr.code())
	assert.Equal(t, 0, h.registry.TotalConnections())
}

func TestSession_JoinAnnouncedToOthersOnly(t *testing.T) {
	h := newHarness(t, defaultRates())
	alice, _ := h.join(t, "alice", "alice-token")
	bob, _ := h.join(t, "bob", "bob-token")

	joined := waitForType(t, alice.fakePeer, TypeUserJoined, 1)
	assert.Equal(t, "bob@example.com joined the discussion", joined[0]["message"])
	assert.EqualValues(t, 2, joined[0]["user_id"])
	assert.Empty(t, ofType(t, bob.fakePeer, TypeUserJoined))
}

func TestSession_CommentPersistedAndBroadcastToWholeRoom(t *testing.T) {
	h := newHarness(t, defaultRates())
	alice, _ := h.join(t, "alice", "alice-token")
	bob, _ := h.join(t, "bob", "bob-token")

	alice.in <- []byte(`{"type":"comment","content":"  Looks good  "}`)

	for _, p := range []*fakePeer{alice.fakePeer, bob.fakePeer} {
		msgs := waitForType(t, p, TypeNewComment, 1)
		comment, ok := msgs[0]["comment"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Looks good", comment["content"])
		assert.EqualValues(t, 7, comment["task_id"])
		assert.EqualValues(t, 1, comment["user_id"])
		user, ok := comment["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", user["email"])
	}
	assert.Equal(t, 1, h.comments.count())
}

func TestSession_ProtocolErrorsKeepSessionOpen(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		reply string
	}{
		{name: "malformed JSON", frame: `{"type":`, reply: "invalid JSON format"},
		{name: "unknown type", frame: `{"type":"reaction"}`, reply: "unknown message type: reaction"},
		{name: "blank comment", frame: `{"type":"comment","content":"   "}`, reply: "comment content cannot be empty"},
		{name: "comment without content", frame: `{"type":"comment"}`, reply: "comment content cannot be empty"},
		{name: "wrong shape", frame: `"just a string"`, reply: "failed to process message"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, defaultRates())
			alice, _ := h.join(t, "alice", "alice-token")
			bob, _ := h.join(t, "bob", "bob-token")

			alice.in <- []byte(tc.frame)

			errs := waitForType(t, alice.fakePeer, TypeError, 1)
			assert.Equal(t, tc.reply, errs[0]["message"])
			assert.Empty(t, ofType(t, bob.fakePeer, TypeError), "errors go to the sender only")
			assert.Empty(t, ofType(t, bob.fakePeer, TypeNewComment))
			assert.Equal(t, 0, h.comments.count())

			// Still joined and still serving frames.
			alice.in <- []byte(`{"type":"typing","is_typing":true}`)
			waitForType(t, bob.fakePeer, TypeUserTyping, 1)
			assert.Equal(t, 2, h.registry.RoomSize(7))
		})
	}
}

func TestSession_TypingExcludesSender(t *testing.T) {
	h := newHarness(t, defaultRates())
	alice, _ := h.join(t, "alice", "alice-token")
	bob, _ := h.join(t, "bob", "bob-token")

	alice.in <- []byte(`{"type":"typing","is_typing":true}`)
	alice.in <- []byte(`{"type":"typing"}`)

	msgs := waitForType(t, bob.fakePeer, TypeUserTyping, 2)
	assert.Equal(t, true, msgs[0]["is_typing"])
	assert.Equal(t, false, msgs[1]["is_typing"], "absent flag defaults to false")
	assert.EqualValues(t, 1, msgs[0]["user_id"])
	assert.Equal(t, "alice@example.com", msgs[0]["user_email"])
	assert.Empty(t, ofType(t, alice.fakePeer, TypeUserTyping))
}

func TestSession_StoreFailureRepliesWithoutBroadcast(t *testing.T) {
	h := newHarness(t, defaultRates())
	h.comments.err = errStoreDown
	alice, _ := h.join(t, "alice", "alice-token")
	bob, _ := h.join(t, "bob", "bob-token")

	alice.in <- []byte(`{"type":"comment","content":"hello"}`)

	errs := waitForType(t, alice.fakePeer, TypeError, 1)
	assert.Equal(t, "failed to save comment", errs[0]["message"])
	assert.Empty(t, ofType(t, bob.fakePeer, TypeNewComment))
	assert.Empty(t, ofType(t, alice.fakePeer, TypeNewComment))
	assert.Equal(t, 2, h.registry.RoomSize(7))
}

func TestSession_RateLimited(t *testing.T) {
	h := newHarness(t, RateSettings{FramesPerSecond: 0.001, Burst: 1})
	alice, _ := h.join(t, "alice", "alice-token")
	bob, _ := h.join(t, "bob", "bob-token")

	alice.in <- []byte(`{"type":"typing","is_typing":true}`)
	alice.in <- []byte(`{"type":"typing","is_typing":false}`)

	errs := waitForType(t, alice.fakePeer, TypeError, 1)
	assert.Equal(t, "too many messages", errs[0]["message"])
	assert.Len(t, ofType(t, bob.fakePeer, TypeUserTyping), 1)
}

func TestSession_PanicInHandlerIsContained(t *testing.T) {
	h := newHarness(t, defaultRates())
	h.comments.panics = true
	alice, done := h.join(t, "alice", "alice-token")

	alice.in <- []byte(`{"type":"comment","content":"hello"}`)

	errs := waitForType(t, alice.fakePeer, TypeError, 1)
	assert.Equal(t, "failed to process message", errs[0]["message"])
	assert.Equal(t, 1, h.registry.RoomSize(7))

	alice.hangUp()
	waitDone(t, done)
	assert.Equal(t, 0, h.registry.TotalConnections())
}

func TestSession_DisconnectLeavesRoom(t *testing.T) {
	h := newHarness(t, defaultRates())
	alice, aliceDone := h.join(t, "alice", "alice-token")
	bob, _ := h.join(t, "bob", "bob-token")
	before := len(bob.frames())

	alice.hangUp()
	waitDone(t, aliceDone)

	assert.Equal(t, 1, h.registry.RoomSize(7))
	_, ok := h.registry.Session("alice")
	assert.False(t, ok)
	assert.True(t, alice.isClosed())
	assert.Len(t, bob.frames(), before, "no leave notice is sent")
}

func TestSession_LastLeaveRemovesRoom(t *testing.T) {
	h := newHarness(t, defaultRates())
	alice, done := h.join(t, "alice", "alice-token")

	alice.hangUp()
	waitDone(t, done)

	assert.Equal(t, 0, h.registry.RoomCount())
}

func TestSession_ContextCancelEndsSession(t *testing.T) {
	h := newHarness(t, defaultRates())
	ctx, cancel := context.WithCancel(context.Background())
	tr := newFakeTransport("alice")
	done := h.start(ctx, tr, "7", "alice-token")
	require.Eventually(t, func() bool { return h.registry.RoomSize(7) == 1 }, waitFor, tick)

	cancel()
	waitDone(t, done)

	assert.Equal(t, 0, h.registry.TotalConnections())
}

func TestSession_FailedReplyEndsSession(t *testing.T) {
	h := newHarness(t, defaultRates())
	alice, done := h.join(t, "alice", "alice-token")

	alice.mu.Lock()
	alice.sendErr = ErrConnClosed
	alice.mu.Unlock()
	alice.in <- []byte(`not json`)

	waitDone(t, done)
	assert.Equal(t, 0, h.registry.TotalConnections())
}

func TestSession_FullSendQueueDropsRepliesAndKeepsSession(t *testing.T) {
	h := newHarness(t, defaultRates())
	alice, done := h.join(t, "alice", "alice-token")

	alice.mu.Lock()
	alice.sendErr = ErrSendQueueFull
	alice.mu.Unlock()
	for i := 0; i < 300; i++ {
		alice.in <- []byte(`{"type":"bogus"}`)
	}

	alice.mu.Lock()
	alice.sendErr = nil
	alice.mu.Unlock()
	alice.in <- []byte(`{"type":"bogus"}`)

	errs := waitForType(t, alice.fakePeer, TypeError, 1)
	assert.Equal(t, "unknown message type: bogus", errs[0]["message"])
	assert.Equal(t, 1, h.registry.RoomSize(7))
	assert.False(t, alice.isClosed())

	alice.hangUp()
	waitDone(t, done)
}

func TestSession_RateLimitRepliesOncePerThrottledStretch(t *testing.T) {
	h := newHarness(t, RateSettings{FramesPerSecond: 0.001, Burst: 1})
	alice, done := h.join(t, "alice", "alice-token")

	for i := 0; i < 6; i++ {
		alice.in <- []byte(`{"type":"typing","is_typing":true}`)
	}
	alice.hangUp()
	waitDone(t, done)

	errs := ofType(t, alice.fakePeer, TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "too many messages", errs[0]["message"])
}

func TestSession_ThrottledStretchEndsOnAllowedFrame(t *testing.T) {
	h := newHarness(t, defaultRates())
	tr := newFakeTransport("c1")
	s := &session{
		p:         h.protocol,
		t:         tr,
		taskID:    7,
		principal: &auth.Principal{UserID: 1, Email: "alice@example.com"},
		limiter:   rate.NewLimiter(0, 0),
		log:       h.protocol.logger,
	}
	typing := []byte(`{"type":"typing","is_typing":true}`)

	assert.Equal(t, msgTooManyMessages, s.handleFrame(context.Background(), typing).reply)
	assert.Empty(t, s.handleFrame(context.Background(), typing).reply)

	s.limiter = rate.NewLimiter(rate.Inf, 1)
	assert.Equal(t, frameOK, s.handleFrame(context.Background(), typing).kind)

	s.limiter = rate.NewLimiter(0, 0)
	assert.Equal(t, msgTooManyMessages, s.handleFrame(context.Background(), typing).reply)
}
