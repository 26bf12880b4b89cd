package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrConnClosed is returned by Send after the connection has been closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendQueueFull is returned by Send when the peer is not draining its queue.
	ErrSendQueueFull = errors.New("send queue full")
)

// ConnOptions tunes a Conn.
type ConnOptions struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

// DefaultConnOptions returns the production defaults.
func DefaultConnOptions() ConnOptions {
	return ConnOptions{
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		SendBuffer:      256,
		MaxMessageBytes: 4096,
	}
}

// Conn wraps a gorilla websocket connection. Outbound frames go through a
// bounded queue drained by one writer goroutine, so a slow client only
// backs up its own queue.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	opts   ConnOptions
	logger *slog.Logger

	closeOnce sync.Once
}

// NewConn takes ownership of ws and starts its writer goroutine.
func NewConn(ws *websocket.Conn, id string, opts ConnOptions, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		opts:   opts,
		logger: logger.With("conn_id", id),
	}

	ws.SetReadLimit(opts.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.writePump()
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Send queues data without blocking.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// ReadFrame blocks until the next data frame arrives. Any error means the
// transport is gone.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	// Any traffic proves the peer is alive.
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	return data, nil
}

// CloseWithCode sends a close frame with code and reason, then closes.
func (c *Conn) CloseWithCode(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close stops the writer and closes the socket. Frames still queued are dropped.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed, closing connection", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
