package mocks

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// MockCommentStore implements store.CommentStore for testing
type MockCommentStore struct {
	CreateFn     func(ctx context.Context, comment *domain.Comment) error
	GetByIDFn    func(ctx context.Context, taskID, commentID int64) (*domain.Comment, error)
	ListByTaskFn func(ctx context.Context, taskID int64, offset, limit int) ([]*domain.Comment, error)
	DeleteFn     func(ctx context.Context, commentID int64) error
}

var _ store.CommentStore = (*MockCommentStore)(nil)

// Create implements store.CommentStore.Create
func (m *MockCommentStore) Create(ctx context.Context, comment *domain.Comment) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, comment)
	}
	return nil
}

// GetByID implements store.CommentStore.GetByID
func (m *MockCommentStore) GetByID(ctx context.Context, taskID, commentID int64) (*domain.Comment, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, taskID, commentID)
	}
	return nil, store.ErrCommentNotFound
}

// ListByTask implements store.CommentStore.ListByTask
func (m *MockCommentStore) ListByTask(
	ctx context.Context,
	taskID int64,
	offset, limit int,
) ([]*domain.Comment, error) {
	if m.ListByTaskFn != nil {
		return m.ListByTaskFn(ctx, taskID, offset, limit)
	}
	return []*domain.Comment{}, nil
}

// Delete implements store.CommentStore.Delete
func (m *MockCommentStore) Delete(ctx context.Context, commentID int64) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, commentID)
	}
	return nil
}

// WithTx implements store.CommentStore.WithTx
func (m *MockCommentStore) WithTx(tx *sql.Tx) store.CommentStore {
	return m
}
