package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/redact"
	"github.com/phrazzld/taskstream-api/internal/service"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"golang.org/x/time/rate"
)

// Error reply texts sent to clients.
const (
	msgInvalidJSON      = "invalid JSON format"
	msgEmptyComment     = "comment content cannot be empty"
	msgSaveFailed       = "failed to save comment"
	msgTooManyMessages  = "too many messages"
	msgProcessingFailed = "failed to process message"
)

// Transport is the socket a session runs over.
type Transport interface {
	Peer
	// ReadFrame blocks for the next inbound frame. Any error ends the session.
	ReadFrame() ([]byte, error)
	// CloseWithCode closes the socket with a WebSocket close code.
	CloseWithCode(code int, reason string) error
}

// TokenResolver maps a bearer token to its principal.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*auth.Principal, error)
}

// TaskFinder looks up tasks. Implemented by service.TaskService.
type TaskFinder interface {
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
}

// CommentCreator persists comments. Implemented by service.CommentService.
type CommentCreator interface {
	CreateComment(ctx context.Context, taskID, userID int64, content string) (*domain.Comment, error)
}

// RateSettings limits inbound frames per connection.
type RateSettings struct {
	FramesPerSecond float64
	Burst           int
}

// Protocol runs WebSocket sessions against a shared Registry.
type Protocol struct {
	registry *Registry
	tokens   TokenResolver
	tasks    TaskFinder
	comments CommentCreator
	rates    RateSettings
	logger   *slog.Logger
}

// NewProtocol wires a Protocol to its collaborators.
func NewProtocol(
	registry *Registry,
	tokens TokenResolver,
	tasks TaskFinder,
	comments CommentCreator,
	rates RateSettings,
	logger *slog.Logger,
) *Protocol {
	if registry == nil {
		panic("registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{
		registry: registry,
		tokens:   tokens,
		tasks:    tasks,
		comments: comments,
		rates:    rates,
		logger:   logger.With("component", "realtime_session"),
	}
}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticating
	stateJoined
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateJoined:
		return "joined"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type frameKind int

const (
	frameOK frameKind = iota
	frameProtocolError
	frameStoreError
)

// frameResult is the outcome of handling one inbound frame. reply is sent to
// the sender for the error kinds; an empty reply is recorded but not sent.
type frameResult struct {
	kind      frameKind
	frameType string
	reply     string
}

func ok(frameType string) frameResult {
	return frameResult{kind: frameOK, frameType: frameType}
}

func protocolError(frameType, reply string) frameResult {
	return frameResult{kind: frameProtocolError, frameType: frameType, reply: reply}
}

// throttledFrame is a rate-limited frame inside a stretch that was already
// answered with msgTooManyMessages.
func throttledFrame() frameResult {
	return frameResult{kind: frameProtocolError, frameType: "rate_limited"}
}

func storeError(frameType string) frameResult {
	return frameResult{kind: frameStoreError, frameType: frameType, reply: msgSaveFailed}
}

func (r frameResult) outcome() string {
	switch r.kind {
	case frameProtocolError:
		return outcomeProtocolError
	case frameStoreError:
		return outcomeStoreError
	default:
		return outcomeOK
	}
}

type session struct {
	p         *Protocol
	t         Transport
	taskID    int64
	principal *auth.Principal
	limiter   *rate.Limiter
	throttled bool
	state     sessionState
	log       *slog.Logger
}

// Run drives one session to completion over an upgraded transport. rawTaskID
// is the task id from the URL and token the bearer token from the query.
// Run returns once the session is closed; the transport is always closed.
func (p *Protocol) Run(ctx context.Context, t Transport, rawTaskID, token string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { _ = t.Close() }()

	s := &session{
		p:     p,
		t:     t,
		state: stateConnecting,
		log:   logger.FromContextOrDefault(ctx, p.logger).With("conn_id", t.ID()),
	}
	if p.rates.FramesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(p.rates.FramesPerSecond), max(p.rates.Burst, 1))
	}

	// A cancelled parent closes the socket, which unblocks ReadFrame.
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	s.transition(stateAuthenticating)
	if !s.authenticate(ctx, rawTaskID, token) {
		s.transition(stateClosed)
		return
	}

	if err := p.registry.Join(t, s.taskID, s.principal.UserID, s.principal.Label()); err != nil {
		s.log.Error("failed to join room", "error", err)
		_ = t.CloseWithCode(websocket.CloseInternalServerErr, "join failed")
		recordClosed("join_failed")
		s.transition(stateClosed)
		return
	}
	s.transition(stateJoined)

	defer func() {
		p.registry.Leave(t.ID())
		s.transition(stateClosed)
	}()

	reason := s.loop(ctx)
	recordClosed(reason)
}

func (s *session) transition(to sessionState) {
	s.log.Debug("session state change", "from", s.state.String(), "to", to.String())
	s.state = to
}

// authenticate resolves the principal and the task. On failure it closes the
// transport with the matching code and returns false.
func (s *session) authenticate(ctx context.Context, rawTaskID, token string) bool {
	principal, err := s.p.tokens.ResolveToken(ctx, token)
	if err != nil {
		s.log.Info("rejecting websocket session", "reason", "auth", "error", redact.Error(err))
		_ = s.t.CloseWithCode(websocket.ClosePolicyViolation, "authentication failed")
		recordClosed("auth_failed")
		return false
	}
	s.principal = principal
	s.log = s.log.With("user_id", principal.UserID)

	taskID, err := strconv.ParseInt(rawTaskID, 10, 64)
	if err != nil || taskID <= 0 {
		s.log.Info("rejecting websocket session", "reason", "bad_task_id", "task_id", rawTaskID)
		_ = s.t.CloseWithCode(websocket.CloseUnsupportedData, "invalid task id")
		recordClosed("task_not_found")
		return false
	}

	if _, err := s.p.tasks.GetTask(ctx, taskID); err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			s.log.Info("rejecting websocket session", "reason", "task_not_found", "task_id", taskID)
			_ = s.t.CloseWithCode(websocket.CloseUnsupportedData, "task not found")
			recordClosed("task_not_found")
			return false
		}
		s.log.Error("failed to load task for websocket session", "task_id", taskID, "error", redact.Error(err))
		_ = s.t.CloseWithCode(websocket.CloseInternalServerErr, "internal error")
		recordClosed("internal_error")
		return false
	}

	s.taskID = taskID
	s.log = s.log.With("task_id", taskID)
	return true
}

// loop reads frames until the transport fails and returns the close reason.
func (s *session) loop(ctx context.Context) (reason string) {
	for {
		data, err := s.t.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("client closed websocket")
			} else {
				s.log.Debug("websocket read ended", "error", err)
			}
			return "disconnected"
		}

		result := s.safeHandle(ctx, data)
		recordReceived(result.frameType, result.outcome())
		if result.kind == frameOK || result.reply == "" {
			continue
		}

		reply, err := Encode(ErrorReply{Text: result.reply})
		if err != nil {
			s.log.Error("failed to encode error reply", "error", err)
			continue
		}
		// Replies are best-effort; only a dead transport ends the session.
		if err := s.t.Send(reply); err != nil {
			if errors.Is(err, ErrSendQueueFull) {
				s.log.Debug("dropped error reply", "reply", result.reply)
				recordRepliesDropped(1)
				continue
			}
			s.log.Debug("failed to send error reply", "error", err)
			return "send_failed"
		}
		recordSent(TypeError, 1)
	}
}

// safeHandle turns a panic in frame handling into a protocol error reply.
func (s *session) safeHandle(ctx context.Context, data []byte) (result frameResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while handling frame",
				"panic", fmt.Sprint(r),
				"stack", redact.String(string(debug.Stack())))
			result = protocolError("unknown", msgProcessingFailed)
		}
	}()
	return s.handleFrame(ctx, data)
}

func (s *session) handleFrame(ctx context.Context, data []byte) frameResult {
	if s.limiter != nil {
		if !s.limiter.Allow() {
			if s.throttled {
				return throttledFrame()
			}
			s.throttled = true
			return protocolError("rate_limited", msgTooManyMessages)
		}
		s.throttled = false
	}

	frame, err := decodeFrame(data)
	if err != nil {
		if errors.Is(err, errMalformedFrame) {
			return protocolError("invalid", msgInvalidJSON)
		}
		s.log.Debug("frame did not match any known shape", "error", err)
		return protocolError("invalid", msgProcessingFailed)
	}

	switch frame.Type {
	case FrameComment:
		return s.handleComment(ctx, frame)
	case FrameTyping:
		return s.handleTyping(frame)
	default:
		return protocolError("unknown", "unknown message type: "+frame.Type)
	}
}

func (s *session) handleComment(ctx context.Context, frame inboundFrame) frameResult {
	start := time.Now()
	comment, err := s.p.comments.CreateComment(ctx, s.taskID, s.principal.UserID, frame.Content)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyContent) {
			return protocolError(FrameComment, msgEmptyComment)
		}
		s.log.Error("failed to persist comment", "error", redact.Error(err))
		return storeError(FrameComment)
	}
	if comment.User == nil {
		comment.User = &domain.UserSummary{ID: s.principal.UserID, Email: s.principal.Email}
	}

	s.p.registry.Broadcast(s.taskID, NewComment{Comment: comment}, "")
	s.log.Debug("comment broadcast", "comment_id", comment.ID, "duration_ms", time.Since(start).Milliseconds())
	return ok(FrameComment)
}

func (s *session) handleTyping(frame inboundFrame) frameResult {
	typing := false
	if frame.IsTyping != nil {
		typing = *frame.IsTyping
	}
	s.p.registry.Broadcast(s.taskID, UserTyping{
		UserID:    s.principal.UserID,
		UserEmail: s.principal.Email,
		IsTyping:  typing,
	}, s.t.ID())
	return ok(FrameTyping)
}
