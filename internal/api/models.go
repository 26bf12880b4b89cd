package api

import (
	"time"

	"github.com/phrazzld/taskstream-api/internal/domain"
)

// RegisterRequest defines the payload for the user registration endpoint.
// Password strength rules live in domain.NewUser.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest defines the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
}

// WebSocketTokenResponse carries a short-lived token for the comment stream.
type WebSocketTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	Title       string  `json:"title"       validate:"required,max=255"`
	Description *string `json:"description"`
}

// UpdateTaskRequest is a partial update; omitted fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string `json:"title"       validate:"omitempty,max=255"`
	Description *string `json:"description"`
	Status      *string `json:"status"      validate:"omitempty,oneof=in_progress completed"`
}

// CreateCommentRequest defines the payload for posting a comment over HTTP.
type CreateCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// TaskResponse is a task as returned by the API.
type TaskResponse struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	Description *string              `json:"description"`
	Status      string               `json:"status"`
	CreatedBy   int64                `json:"created_by"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Creator     *UserSummaryResponse `json:"creator,omitempty"`
}

// UserSummaryResponse is the creator or author embedded in tasks and comments.
type UserSummaryResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// CommentResponse is a comment as returned by the API.
type CommentResponse struct {
	ID        int64                `json:"id"`
	Content   string               `json:"content"`
	TaskID    int64                `json:"task_id"`
	UserID    int64                `json:"user_id"`
	CreatedAt time.Time            `json:"created_at"`
	User      *UserSummaryResponse `json:"user,omitempty"`
}

// TaskStatsResponse summarizes tasks by status.
type TaskStatsResponse struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

func userToResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

func summaryToResponse(s *domain.UserSummary) *UserSummaryResponse {
	if s == nil {
		return nil
	}
	return &UserSummaryResponse{ID: s.ID, Email: s.Email}
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Creator:     summaryToResponse(t.Creator),
	}
}

func tasksToResponse(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	return out
}

func commentToResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		Content:   c.Content,
		TaskID:    c.TaskID,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt,
		User:      summaryToResponse(c.User),
	}
}

func commentsToResponse(comments []*domain.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentToResponse(c))
	}
	return out
}
