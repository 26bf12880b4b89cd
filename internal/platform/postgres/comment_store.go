package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// PostgresCommentStore implements the store.CommentStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCommentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCommentStore creates a new PostgreSQL implementation of the CommentStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresCommentStore(db store.DBTX, logger *slog.Logger) *PostgresCommentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCommentStore{
		db:     db,
		logger: logger.With(slog.String("component", "comment_store")),
	}
}

// Ensure PostgresCommentStore implements store.CommentStore interface
var _ store.CommentStore = (*PostgresCommentStore)(nil)

// WithTx implements store.CommentStore.WithTx
func (s *PostgresCommentStore) WithTx(tx *sql.Tx) store.CommentStore {
	return &PostgresCommentStore{db: tx, logger: s.logger}
}

// Create implements store.CommentStore.Create
// The author summary is loaded in the same statement so the returned comment
// is ready to be broadcast.
func (s *PostgresCommentStore) Create(ctx context.Context, comment *domain.Comment) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := comment.Validate(); err != nil {
		log.Warn("comment validation failed during create", slog.String("error", err.Error()))
		return err
	}

	query := `
		WITH inserted AS (
			INSERT INTO comments (content, task_id, user_id, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, user_id
		)
		SELECT i.id, i.created_at, u.email
		FROM inserted i
		JOIN users u ON u.id = i.user_id
	`
	var email string
	err := s.db.QueryRowContext(ctx, query,
		comment.Content,
		comment.TaskID,
		comment.UserID,
		comment.CreatedAt,
	).Scan(&comment.ID, &comment.CreatedAt, &email)
	if err != nil {
		if IsForeignKeyViolation(err) {
			// The task or the author was deleted underneath the insert.
			if violatedConstraint(err) == commentsUserFKey {
				log.Debug("comment references a missing author",
					slog.Int64("user_id", comment.UserID))
				return store.ErrUserNotFound
			}
			log.Debug("comment references a missing task",
				slog.Int64("task_id", comment.TaskID))
			return store.ErrTaskNotFound
		}
		log.Error("failed to create comment",
			slog.String("error", err.Error()),
			slog.Int64("task_id", comment.TaskID),
			slog.Int64("user_id", comment.UserID))
		return MapError(err)
	}

	comment.User = &domain.UserSummary{ID: comment.UserID, Email: email}

	log.Debug("comment created",
		slog.Int64("comment_id", comment.ID),
		slog.Int64("task_id", comment.TaskID))
	return nil
}

// GetByID implements store.CommentStore.GetByID
func (s *PostgresCommentStore) GetByID(ctx context.Context, taskID, commentID int64) (*domain.Comment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT c.id, c.content, c.task_id, c.user_id, c.created_at, u.email
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id = $1 AND c.task_id = $2
	`
	comment, err := scanComment(s.db.QueryRowContext(ctx, query, commentID, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCommentNotFound
		}
		log.Error("failed to get comment",
			slog.String("error", err.Error()),
			slog.Int64("comment_id", commentID))
		return nil, MapError(err)
	}
	return comment, nil
}

// ListByTask implements store.CommentStore.ListByTask
func (s *PostgresCommentStore) ListByTask(
	ctx context.Context,
	taskID int64,
	offset, limit int,
) ([]*domain.Comment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT c.id, c.content, c.task_id, c.user_id, c.created_at, u.email
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.task_id = $1
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, taskID, limit, offset)
	if err != nil {
		log.Error("failed to list comments",
			slog.String("error", err.Error()),
			slog.Int64("task_id", taskID))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	comments := make([]*domain.Comment, 0, limit)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, MapError(err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return comments, nil
}

// Delete implements store.CommentStore.Delete
func (s *PostgresCommentStore) Delete(ctx context.Context, commentID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, commentID)
	if err != nil {
		log.Error("failed to delete comment",
			slog.String("error", err.Error()),
			slog.Int64("comment_id", commentID))
		return MapError(err)
	}
	return checkRowsAffected(result, store.ErrCommentNotFound)
}

func scanComment(row rowScanner) (*domain.Comment, error) {
	var (
		c     domain.Comment
		email string
	)
	if err := row.Scan(&c.ID, &c.Content, &c.TaskID, &c.UserID, &c.CreatedAt, &email); err != nil {
		return nil, err
	}
	c.User = &domain.UserSummary{ID: c.UserID, Email: email}
	return &c, nil
}
