package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/phrazzld/taskstream-api/internal/domain"
)

// Outbound message types.
const (
	TypeUserJoined = "user_joined"
	TypeUserTyping = "user_typing"
	TypeNewComment = "new_comment"
	TypeError      = "error"
)

// Inbound frame types.
const (
	FrameComment = "comment"
	FrameTyping  = "typing"
)

// Message is an outbound event. The concrete types are immutable values.
type Message interface {
	Type() string
}

// UserJoined announces a new member to the rest of a room.
type UserJoined struct {
	UserID int64
	Text   string
}

// UserTyping relays a typing indicator.
type UserTyping struct {
	UserID    int64
	UserEmail string
	IsTyping  bool
}

// NewComment carries a persisted comment.
type NewComment struct {
	Comment *domain.Comment
}

// ErrorReply tells a single client that its frame was rejected.
type ErrorReply struct {
	Text string
}

func (UserJoined) Type() string { return TypeUserJoined }
func (UserTyping) Type() string { return TypeUserTyping }
func (NewComment) Type() string { return TypeNewComment }
func (ErrorReply) Type() string { return TypeError }

type userJoinedFrame struct {
	Type    string `json:"type"`
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

type userTypingFrame struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	UserEmail string `json:"user_email"`
	IsTyping  bool   `json:"is_typing"`
}

type commentUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type commentPayload struct {
	ID        int64       `json:"id"`
	Content   string      `json:"content"`
	TaskID    int64       `json:"task_id"`
	UserID    int64       `json:"user_id"`
	CreatedAt string      `json:"created_at"`
	User      commentUser `json:"user"`
}

type newCommentFrame struct {
	Type    string         `json:"type"`
	Comment commentPayload `json:"comment"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Encode serializes msg into a fresh byte slice.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case UserJoined:
		return json.Marshal(userJoinedFrame{Type: TypeUserJoined, UserID: m.UserID, Message: m.Text})
	case UserTyping:
		return json.Marshal(userTypingFrame{
			Type:      TypeUserTyping,
			UserID:    m.UserID,
			UserEmail: m.UserEmail,
			IsTyping:  m.IsTyping,
		})
	case NewComment:
		if m.Comment == nil {
			return nil, errors.New("new_comment without a comment")
		}
		return json.Marshal(newCommentFrame{Type: TypeNewComment, Comment: toCommentPayload(m.Comment)})
	case ErrorReply:
		return json.Marshal(errorFrame{Type: TypeError, Message: m.Text})
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}
}

func toCommentPayload(c *domain.Comment) commentPayload {
	p := commentPayload{
		ID:        c.ID,
		Content:   c.Content,
		TaskID:    c.TaskID,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		User:      commentUser{ID: c.UserID},
	}
	if c.User != nil {
		p.User = commentUser{ID: c.User.ID, Email: c.User.Email}
	}
	return p
}

// inboundFrame is the client-to-server envelope. Fields that do not apply to
// a frame's type are ignored.
type inboundFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	IsTyping *bool  `json:"is_typing"`
}

var errMalformedFrame = errors.New("malformed frame")

// decodeFrame parses an inbound frame. Input that is not JSON at all yields
// errMalformedFrame; well-formed JSON of the wrong shape yields the decoder error.
func decodeFrame(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if !json.Valid(data) {
		return f, errMalformedFrame
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
