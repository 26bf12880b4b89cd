package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskstream-api/internal/api/shared"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/service"
)

// CommentIDParam is the chi URL parameter naming a comment.
const CommentIDParam = "comment_id"

// CommentHandler serves comments over plain HTTP. Comments created here are
// stored but not pushed to the live stream; clients that want live delivery
// post over the WebSocket.
type CommentHandler struct {
	comments service.CommentService
	logger   *slog.Logger
}

// NewCommentHandler creates a new CommentHandler.
func NewCommentHandler(comments service.CommentService, logger *slog.Logger) *CommentHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CommentHandler")
	}
	return &CommentHandler{
		comments: comments,
		logger:   logger.With(slog.String("component", "comment_handler")),
	}
}

// ListComments handles GET /tasks/{task_id}/comments?skip=&limit=. Oldest first.
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	taskID, ok := handlePathID(w, r, TaskIDParam, log)
	if !ok {
		return
	}
	offset, limit, err := parsePagination(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	comments, err := h.comments.ListComments(r.Context(), taskID, offset, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list comments")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, commentsToResponse(comments))
}

// CreateComment handles POST /tasks/{task_id}/comments.
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handleUserIDFromContext(w, r, log)
	if !ok {
		return
	}
	taskID, ok := handlePathID(w, r, TaskIDParam, log)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	comment, err := h.comments.CreateComment(r.Context(), taskID, userID, req.Content)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create comment")
		return
	}

	log.Debug("comment created", slog.Int64("comment_id", comment.ID), slog.Int64("task_id", taskID))
	shared.RespondWithJSON(w, r, http.StatusCreated, commentToResponse(comment))
}

// DeleteComment handles DELETE /tasks/{task_id}/comments/{comment_id}.
// Only the author may delete a comment.
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handleUserIDFromContext(w, r, log)
	if !ok {
		return
	}
	taskID, ok := handlePathID(w, r, TaskIDParam, log)
	if !ok {
		return
	}
	commentID, ok := handlePathID(w, r, CommentIDParam, log)
	if !ok {
		return
	}

	if err := h.comments.DeleteComment(r.Context(), taskID, commentID, userID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete comment")
		return
	}

	log.Info("comment deleted", slog.Int64("comment_id", commentID), slog.Int64("task_id", taskID))
	shared.RespondWithMessage(w, r, "Comment deleted")
}
