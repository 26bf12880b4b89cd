package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskstream-api/internal/domain"
)

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Create saves a new task and fills in its generated ID and timestamps.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task together with its creator.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Task, error)

	// GetByIDForUpdate retrieves a task and locks its row for the rest of the
	// surrounding transaction. Only meaningful on a store returned by WithTx.
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Task, error)

	// List returns tasks newest first, optionally filtered by status.
	List(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error)

	// Update persists title, description, status and updated_at.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes the task and, by cascade, its comments.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id int64) error

	// Stats counts tasks by status.
	Stats(ctx context.Context) (*domain.TaskStats, error)

	// WithTx returns a TaskStore bound to the given transaction.
	WithTx(tx *sql.Tx) TaskStore
}
