package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// TaskService manages the shared task board. Any authenticated user may
// update or delete any task.
type TaskService interface {
	CreateTask(ctx context.Context, userID int64, title string, description *string) (*domain.Task, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error)
	// UpdateTask applies a partial update under a row lock.
	UpdateTask(ctx context.Context, id int64, update domain.TaskUpdate) (*domain.Task, error)
	// DeleteTask removes the task together with its comments.
	DeleteTask(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*domain.TaskStats, error)
}

type taskServiceImpl struct {
	tasks  store.TaskStore
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskService creates a TaskService. db is used to open transactions for updates.
func NewTaskService(tasks store.TaskStore, db *sql.DB, logger *slog.Logger) TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &taskServiceImpl{
		tasks:  tasks,
		db:     db,
		logger: logger.With("component", "task_service"),
	}
}

func (s *taskServiceImpl) CreateTask(
	ctx context.Context,
	userID int64,
	title string,
	description *string,
) (*domain.Task, error) {
	task, err := domain.NewTask(title, description, userID)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create task",
			"error", err,
			"user_id", userID)
		return nil, NewServiceError("create_task", "failed to save task", err)
	}
	return task, nil
}

func (s *taskServiceImpl) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError("get_task", err)
	}
	return task, nil
}

func (s *taskServiceImpl) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", "is not a known status", domain.ErrInvalidTaskStatus)
	}
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, NewServiceError("list_tasks", "failed to retrieve tasks", err)
	}
	return tasks, nil
}

func (s *taskServiceImpl) UpdateTask(
	ctx context.Context,
	id int64,
	update domain.TaskUpdate,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.Task
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txTasks := s.tasks.WithTx(tx)

		task, err := txTasks.GetByIDForUpdate(ctx, id)
		if err != nil {
			return s.mapLookupError("update_task", err)
		}

		if err := update.Apply(task); err != nil {
			return err
		}

		if err := txTasks.Update(ctx, task); err != nil {
			log.Error("failed to save task update", "error", err, "task_id", id)
			return NewServiceError("update_task", "failed to save task", err)
		}

		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("task updated", "task_id", id, "status", updated.Status)
	return updated, nil
}

func (s *taskServiceImpl) DeleteTask(ctx context.Context, id int64) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return s.mapLookupError("delete_task", err)
	}
	return nil
}

func (s *taskServiceImpl) Stats(ctx context.Context) (*domain.TaskStats, error) {
	stats, err := s.tasks.Stats(ctx)
	if err != nil {
		return nil, NewServiceError("task_stats", "failed to count tasks", err)
	}
	return stats, nil
}

func (s *taskServiceImpl) mapLookupError(op string, err error) error {
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return NewServiceError(op, "failed to retrieve task", err)
}
