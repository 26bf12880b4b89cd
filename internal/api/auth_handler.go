package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/taskstream-api/internal/api/shared"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/service"
	"github.com/phrazzld/taskstream-api/internal/service/auth"
	"github.com/phrazzld/taskstream-api/internal/store"
)

// tokenTypeBearer is the token_type reported to OAuth-style clients.
const tokenTypeBearer = "bearer"

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	users              service.UserService
	jwtService         auth.JWTService
	websocketTokenLife time.Duration
	logger             *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. websocketTokenLife is the lifetime
// of tokens issued for the live comment stream.
func NewAuthHandler(
	users service.UserService,
	jwtService auth.JWTService,
	websocketTokenLife time.Duration,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		users:              users,
		jwtService:         jwtService,
		websocketTokenLife: websocketTokenLife,
		logger:             logger.With(slog.String("component", "auth_handler")),
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create user")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("user registered", slog.Int64("user_id", user.ID))
	shared.RespondWithJSON(w, r, http.StatusCreated, userToResponse(user))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid email or password", err,
				shared.WithElevatedLogLevel())
			return
		}
		HandleAPIError(w, r, err, "Failed to authenticate user")
		return
	}

	h.respondWithTokenPair(w, r, user.ID)
}

// RefreshToken handles POST /auth/refresh. The subject must still exist.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid refresh token", err)
		return
	}

	if _, err := h.users.GetUser(r.Context(), claims.UserID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "User not found", err)
			return
		}
		HandleAPIError(w, r, err, "Failed to refresh token")
		return
	}

	h.respondWithTokenPair(w, r, claims.UserID)
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handleUserIDFromContext(w, r, log)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "User not found", err)
			return
		}
		HandleAPIError(w, r, err, "Failed to load user")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// WebSocketToken handles GET /auth/websocket-token. It issues a short-lived
// access token for the ?token= parameter of the comment stream.
func (h *AuthHandler) WebSocketToken(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handleUserIDFromContext(w, r, log)
	if !ok {
		return
	}

	token, err := h.jwtService.GenerateTokenWithLifetime(r.Context(), userID, h.websocketTokenLife)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, WebSocketTokenResponse{
		Token:     token,
		ExpiresIn: int(h.websocketTokenLife.Seconds()),
	})
}

func (h *AuthHandler) respondWithTokenPair(w http.ResponseWriter, r *http.Request, userID int64) {
	accessToken, err := h.jwtService.GenerateToken(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}
	refreshToken, err := h.jwtService.GenerateRefreshToken(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate refresh token")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int(h.jwtService.AccessTokenLifetime().Seconds()),
	})
}
