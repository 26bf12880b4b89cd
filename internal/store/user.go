package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskstream-api/internal/domain"
)

// UserStore defines the interface for user data persistence.
type UserStore interface {
	// Create validates the user, hashes its plaintext password and saves it,
	// filling in the generated ID.
	// Returns ErrEmailExists if the email is already taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	// Returns ErrUserNotFound if the user does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// WithTx returns a UserStore bound to the given transaction.
	WithTx(tx *sql.Tx) UserStore
}
