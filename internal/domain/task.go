package domain

import (
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusInProgress || s == TaskStatusCompleted
}

const maxTitleLength = 255

// Task is a unit of work shared by every user. Comments hang off it and its
// ID names the live comment room.
type Task struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Status      TaskStatus   `json:"status"`
	CreatedBy   int64        `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Creator     *UserSummary `json:"creator,omitempty"`
}

// NewTask creates an in-progress task owned by createdBy.
func NewTask(title string, description *string, createdBy int64) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		Title:       strings.TrimSpace(title),
		Description: description,
		Status:      TaskStatusInProgress,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks the task's fields.
func (t *Task) Validate() error {
	if t.Title == "" {
		return NewValidationError("title", "cannot be empty", ErrEmptyContent)
	}
	if len(t.Title) > maxTitleLength {
		return NewValidationError("title", "is too long", ErrValidation)
	}
	if !t.Status.Valid() {
		return NewValidationError("status", "is not a known status", ErrInvalidTaskStatus)
	}
	if t.CreatedBy <= 0 {
		return NewValidationError("created_by", "is required", ErrInvalidID)
	}
	return nil
}

// TaskUpdate carries the fields of a partial update; nil means unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *TaskStatus
}

// Apply copies the set fields of u onto t and re-validates it.
func (u TaskUpdate) Apply(t *Task) error {
	if u.Title != nil {
		t.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		t.Description = u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	t.UpdatedAt = time.Now().UTC()
	return t.Validate()
}

// TaskFilter narrows and pages a task listing.
type TaskFilter struct {
	Status *TaskStatus
	Offset int
	Limit  int
}

// TaskStats summarizes task counts by status.
type TaskStats struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}
