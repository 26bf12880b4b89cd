package domain

import (
	"strings"
	"time"
)

// Comment is a message posted on a task, either over HTTP or the live stream.
type Comment struct {
	ID        int64        `json:"id"`
	Content   string       `json:"content"`
	TaskID    int64        `json:"task_id"`
	UserID    int64        `json:"user_id"`
	CreatedAt time.Time    `json:"created_at"`
	User      *UserSummary `json:"user,omitempty"`
}

// NewComment trims content and rejects it when nothing is left.
func NewComment(taskID, userID int64, content string) (*Comment, error) {
	c := &Comment{
		Content:   strings.TrimSpace(content),
		TaskID:    taskID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the comment's fields.
func (c *Comment) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return NewValidationError("content", "cannot be empty", ErrEmptyContent)
	}
	if c.TaskID <= 0 {
		return NewValidationError("task_id", "is required", ErrInvalidID)
	}
	if c.UserID <= 0 {
		return NewValidationError("user_id", "is required", ErrInvalidID)
	}
	return nil
}
