package mocks

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// MockTaskStore implements store.TaskStore for testing
type MockTaskStore struct {
	CreateFn           func(ctx context.Context, task *domain.Task) error
	GetByIDFn          func(ctx context.Context, id int64) (*domain.Task, error)
	GetByIDForUpdateFn func(ctx context.Context, id int64) (*domain.Task, error)
	ListFn             func(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error)
	UpdateFn           func(ctx context.Context, task *domain.Task) error
	DeleteFn           func(ctx context.Context, id int64) error
	StatsFn            func(ctx context.Context) (*domain.TaskStats, error)
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// Create implements store.TaskStore.Create
func (m *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, task)
	}
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (m *MockTaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, store.ErrTaskNotFound
}

// GetByIDForUpdate implements store.TaskStore.GetByIDForUpdate
// It falls back to GetByID when no dedicated function is set.
func (m *MockTaskStore) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Task, error) {
	if m.GetByIDForUpdateFn != nil {
		return m.GetByIDForUpdateFn(ctx, id)
	}
	return m.GetByID(ctx, id)
}

// List implements store.TaskStore.List
func (m *MockTaskStore) List(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	return []*domain.Task{}, nil
}

// Update implements store.TaskStore.Update
func (m *MockTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, task)
	}
	return nil
}

// Delete implements store.TaskStore.Delete
func (m *MockTaskStore) Delete(ctx context.Context, id int64) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	return nil
}

// Stats implements store.TaskStore.Stats
func (m *MockTaskStore) Stats(ctx context.Context) (*domain.TaskStats, error) {
	if m.StatsFn != nil {
		return m.StatsFn(ctx)
	}
	return &domain.TaskStats{}, nil
}

// WithTx implements store.TaskStore.WithTx
func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}
