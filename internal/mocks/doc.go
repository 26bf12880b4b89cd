// Package mocks provides hand-written mock implementations shared by tests.
//
// Each mock exposes one function field per interface method. A nil field
// falls back to the mock's default values, so tests only set what they need:
//
//	tasks := &mocks.MockTaskStore{
//	    GetByIDFn: func(ctx context.Context, id int64) (*domain.Task, error) {
//	        return nil, store.ErrTaskNotFound
//	    },
//	}
package mocks
