package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/taskstream-api/internal/platform/metrics"
)

// ErrAlreadyRegistered is returned by Join for a connection that is already in a room.
var ErrAlreadyRegistered = errors.New("connection already registered")

// Peer is one live connection as seen by the registry. The transport owns the
// underlying socket; the registry only references it.
type Peer interface {
	// ID is the opaque identity assigned when the connection was accepted.
	ID() string
	// Send queues data for delivery. An error means the peer is unusable.
	Send(data []byte) error
	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// SessionInfo is the metadata kept for each registered connection.
type SessionInfo struct {
	ConnID string
	TaskID int64
	UserID int64
	Label  string
}

// Registry maps task ids to the peers viewing them. A peer is in at most one
// room; rooms exist only while they have members.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[int64]map[string]Peer
	sessions map[string]SessionInfo
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:    make(map[int64]map[string]Peer),
		sessions: make(map[string]SessionInfo),
		logger:   logger.With("component", "realtime_registry"),
	}
}

// Join registers peer in the room for taskID and announces it to the other
// members. The joiner itself receives no notice. label falls back to
// "user {id}" when empty.
func (r *Registry) Join(peer Peer, taskID, userID int64, label string) error {
	if label == "" {
		label = fmt.Sprintf("user %d", userID)
	}
	id := peer.ID()

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	room, ok := r.rooms[taskID]
	if !ok {
		room = make(map[string]Peer)
		r.rooms[taskID] = room
	}
	room[id] = peer
	r.sessions[id] = SessionInfo{ConnID: id, TaskID: taskID, UserID: userID, Label: label}
	size := len(room)
	r.publishGaugesLocked()
	r.mu.Unlock()

	r.logger.Info("connection joined room",
		"conn_id", id,
		"task_id", taskID,
		"user_id", userID,
		"room_size", size)

	r.Broadcast(taskID, UserJoined{UserID: userID, Text: label + " joined the discussion"}, id)
	return nil
}

// Leave removes the connection and its session metadata, dropping the room
// when it empties. Unknown ids are ignored. No notice is sent to the room.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	info, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, connID)
	remaining := 0
	if room, ok := r.rooms[info.TaskID]; ok {
		delete(room, connID)
		remaining = len(room)
		if remaining == 0 {
			delete(r.rooms, info.TaskID)
		}
	}
	r.publishGaugesLocked()
	r.mu.Unlock()

	r.logger.Info("connection left room",
		"conn_id", connID,
		"task_id", info.TaskID,
		"user_id", info.UserID,
		"room_size", remaining)
}

// Session returns the metadata for a registered connection.
func (r *Registry) Session(connID string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.sessions[connID]
	return info, ok
}

// RoomSize returns the number of members viewing taskID, 0 if none.
func (r *Registry) RoomSize(taskID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[taskID])
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// TotalConnections returns the number of registered connections across all rooms.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered peer. Their sessions observe the closed
// transport and leave on their own.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.sessions))
	for _, room := range r.rooms {
		for _, p := range room {
			peers = append(peers, p)
		}
	}
	r.mu.RUnlock()

	for _, p := range peers {
		_ = p.Close()
	}
	r.logger.Info("closed all live connections", "count", len(peers))
}

// publishGaugesLocked must be called with r.mu held.
func (r *Registry) publishGaugesLocked() {
	metrics.UpdateRoomGauges(len(r.sessions), len(r.rooms))
}
