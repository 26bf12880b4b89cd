package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/store"
	gobreaker "github.com/sony/gobreaker/v2"
)

// CommentService manages comments on tasks.
type CommentService interface {
	// CreateComment trims and persists a comment and returns it with its author.
	// Returns domain.ErrEmptyContent for blank content, ErrTaskNotFound when the
	// task is gone and ErrStoreUnavailable while the breaker is open.
	CreateComment(ctx context.Context, taskID, userID int64, content string) (*domain.Comment, error)

	// ListComments returns a task's comments oldest first.
	// Returns ErrTaskNotFound if the task does not exist.
	ListComments(ctx context.Context, taskID int64, offset, limit int) ([]*domain.Comment, error)

	// DeleteComment removes a comment written by userID.
	// Returns ErrCommentNotFound or ErrNotOwned.
	DeleteComment(ctx context.Context, taskID, commentID, userID int64) error
}

type commentServiceImpl struct {
	comments store.CommentStore
	tasks    store.TaskStore
	breaker  *gobreaker.CircuitBreaker[*domain.Comment]
	logger   *slog.Logger
}

// NewCommentService creates a CommentService whose writes go through a
// circuit breaker named "comment_store".
func NewCommentService(
	comments store.CommentStore,
	tasks store.TaskStore,
	settings BreakerSettings,
	logger *slog.Logger,
) CommentService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "comment_service")

	return &commentServiceImpl{
		comments: comments,
		tasks:    tasks,
		breaker:  newBreaker[*domain.Comment]("comment_store", settings, logger),
		logger:   logger,
	}
}

func (s *commentServiceImpl) CreateComment(
	ctx context.Context,
	taskID, userID int64,
	content string,
) (*domain.Comment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	comment, err := domain.NewComment(taskID, userID, content)
	if err != nil {
		return nil, err
	}

	saved, err := s.breaker.Execute(func() (*domain.Comment, error) {
		if err := s.comments.Create(ctx, comment); err != nil {
			return nil, err
		}
		return comment, nil
	})
	switch {
	case err == nil:
		log.Debug("comment saved", "comment_id", saved.ID, "task_id", taskID)
		return saved, nil
	case isBreakerRejection(err):
		log.Warn("comment write rejected by open circuit breaker", "task_id", taskID)
		return nil, ErrStoreUnavailable
	case errors.Is(err, store.ErrTaskNotFound):
		return nil, ErrTaskNotFound
	default:
		log.Error("failed to save comment", "error", err, "task_id", taskID, "user_id", userID)
		return nil, NewServiceError("create_comment", "failed to save comment", err)
	}
}

func (s *commentServiceImpl) ListComments(
	ctx context.Context,
	taskID int64,
	offset, limit int,
) ([]*domain.Comment, error) {
	if _, err := s.tasks.GetByID(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, NewServiceError("list_comments", "failed to retrieve task", err)
	}

	comments, err := s.comments.ListByTask(ctx, taskID, offset, limit)
	if err != nil {
		return nil, NewServiceError("list_comments", "failed to retrieve comments", err)
	}
	return comments, nil
}

func (s *commentServiceImpl) DeleteComment(ctx context.Context, taskID, commentID, userID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	comment, err := s.comments.GetByID(ctx, taskID, commentID)
	if err != nil {
		if errors.Is(err, store.ErrCommentNotFound) {
			return ErrCommentNotFound
		}
		return NewServiceError("delete_comment", "failed to retrieve comment", err)
	}

	if comment.UserID != userID {
		log.Debug("refusing to delete another user's comment",
			"comment_id", commentID,
			"owner_id", comment.UserID,
			"user_id", userID)
		return ErrNotOwned
	}

	if err := s.comments.Delete(ctx, commentID); err != nil {
		if errors.Is(err, store.ErrCommentNotFound) {
			return ErrCommentNotFound
		}
		return NewServiceError("delete_comment", "failed to delete comment", err)
	}
	return nil
}
