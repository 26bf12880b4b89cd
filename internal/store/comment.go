package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskstream-api/internal/domain"
)

// CommentStore defines the interface for comment persistence.
type CommentStore interface {
	// Create saves the comment and fills in its generated ID and created_at.
	// Returns ErrTaskNotFound if the task no longer exists.
	Create(ctx context.Context, comment *domain.Comment) error

	// GetByID retrieves a comment that belongs to taskID.
	// Returns ErrCommentNotFound otherwise.
	GetByID(ctx context.Context, taskID, commentID int64) (*domain.Comment, error)

	// ListByTask returns a task's comments oldest first, with their authors.
	ListByTask(ctx context.Context, taskID int64, offset, limit int) ([]*domain.Comment, error)

	// Delete removes a comment.
	// Returns ErrCommentNotFound if the comment does not exist.
	Delete(ctx context.Context, commentID int64) error

	// WithTx returns a CommentStore bound to the given transaction.
	WithTx(tx *sql.Tx) CommentStore
}
