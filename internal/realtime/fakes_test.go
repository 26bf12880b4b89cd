package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/service"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"github.com/stretchr/testify/require"
)

// fakePeer records every frame it is sent.
type fakePeer struct {
	id string

	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	if p.closed {
		return ErrConnClosed
	}
	p.received = append(p.received, data)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) frames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.received))
	copy(out, p.received)
	return out
}

// messages decodes everything received so far.
func (p *fakePeer) messages(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, f := range p.frames() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

// fakeTransport feeds scripted frames to a session.
type fakeTransport struct {
	*fakePeer
	in   chan []byte
	done chan struct{}
	once sync.Once

	closeMu     sync.Mutex
	closeCode   int
	closeReason string
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{
		fakePeer: newFakePeer(id),
		in:       make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (t *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-t.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-t.done:
		return nil, ErrConnClosed
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.fakePeer.Close()
}

func (t *fakeTransport) CloseWithCode(code int, reason string) error {
	t.closeMu.Lock()
	t.closeCode = code
	t.closeReason = reason
	t.closeMu.Unlock()
	return t.Close()
}

func (t *fakeTransport) code() int {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closeCode
}

// hangUp ends the client side; the session sees io.EOF once queued frames are read.
func (t *fakeTransport) hangUp() { close(t.in) }

type fakeResolver struct {
	principals map[string]*auth.Principal
}

func (r *fakeResolver) ResolveToken(_ context.Context, token string) (*auth.Principal, error) {
	if token == "" {
		return nil, auth.ErrMissingToken
	}
	p, ok := r.principals[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return p, nil
}

type fakeTasks struct {
	tasks  map[int64]*domain.Task
	err    error
	panics bool
}

func (f *fakeTasks) GetTask(_ context.Context, id int64) (*domain.Task, error) {
	if f.panics {
		panic("task lookup exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	task, ok := f.tasks[id]
	if !ok {
		return nil, service.ErrTaskNotFound
	}
	return task, nil
}

type fakeComments struct {
	mu     sync.Mutex
	nextID int64
	saved  []*domain.Comment
	err    error
	panics bool
}

func (f *fakeComments) CreateComment(_ context.Context, taskID, userID int64, content string) (*domain.Comment, error) {
	if f.panics {
		panic("boom")
	}
	c, err := domain.NewComment(taskID, userID, content)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	c.ID = f.nextID
	f.saved = append(f.saved, c)
	return c, nil
}

func (f *fakeComments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

var errStoreDown = errors.New("connection refused")
