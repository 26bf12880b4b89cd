package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskstream-api/internal/api/shared"
	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/service"
)

// TaskIDParam is the chi URL parameter naming a task.
const TaskIDParam = "task_id"

// TaskHandler handles task HTTP requests. Tasks are shared: any
// authenticated user may read, update or delete any task.
type TaskHandler struct {
	tasks  service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handleUserIDFromContext(w, r, log)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	task, err := h.tasks.CreateTask(r.Context(), userID, req.Title, req.Description)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	log.Debug("task created", slog.Int64("task_id", task.ID), slog.Int64("user_id", userID))
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// ListTasks handles GET /tasks?status=&skip=&limit=. Newest first.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parsePagination(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	filter := domain.TaskFilter{Offset: offset, Limit: limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TaskStatus(raw)
		filter.Status = &status
	}

	tasks, err := h.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// GetTask handles GET /tasks/{task_id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	taskID, ok := handlePathID(w, r, TaskIDParam, log)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// UpdateTask handles PUT /tasks/{task_id} with a partial body.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	taskID, ok := handlePathID(w, r, TaskIDParam, log)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	update := domain.TaskUpdate{Title: req.Title, Description: req.Description}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		update.Status = &status
	}

	task, err := h.tasks.UpdateTask(r.Context(), taskID, update)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}

	log.Debug("task updated", slog.Int64("task_id", taskID))
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// DeleteTask handles DELETE /tasks/{task_id}. Comments go with the task.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	taskID, ok := handlePathID(w, r, TaskIDParam, log)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete task")
		return
	}

	log.Info("task deleted", slog.Int64("task_id", taskID))
	shared.RespondWithMessage(w, r, "Task deleted")
}

// Stats handles GET /tasks/stats/overview.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tasks.Stats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task statistics")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatsResponse{
		Total:      stats.Total,
		InProgress: stats.InProgress,
		Completed:  stats.Completed,
	})
}
