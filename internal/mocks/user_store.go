package mocks

import (
	"context"
	"database/sql"

	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// MockUserStore implements store.UserStore for testing.
// Without function fields it serves Users, keyed by ID.
type MockUserStore struct {
	CreateFn     func(ctx context.Context, user *domain.User) error
	GetByIDFn    func(ctx context.Context, id int64) (*domain.User, error)
	GetByEmailFn func(ctx context.Context, email string) (*domain.User, error)

	Users map[int64]*domain.User
}

var _ store.UserStore = (*MockUserStore)(nil)

// Create implements store.UserStore.Create
func (m *MockUserStore) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, user)
	}
	if m.Users == nil {
		m.Users = make(map[int64]*domain.User)
	}
	for _, u := range m.Users {
		if u.Email == user.Email {
			return store.ErrEmailExists
		}
	}
	user.ID = int64(len(m.Users) + 1)
	user.HashedPassword = "hashed:" + user.Password
	user.Password = ""
	m.Users[user.ID] = user
	return nil
}

// GetByID implements store.UserStore.GetByID
func (m *MockUserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	if u, ok := m.Users[id]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

// GetByEmail implements store.UserStore.GetByEmail
func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFn != nil {
		return m.GetByEmailFn(ctx, email)
	}
	for _, u := range m.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

// WithTx implements store.UserStore.WithTx
func (m *MockUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return m
}
