package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/taskstream-api/internal/api/shared"
	"github.com/phrazzld/taskstream-api/internal/domain"
	"github.com/phrazzld/taskstream-api/internal/platform/logger"
	"github.com/phrazzld/taskstream-api/internal/redact"
)

// Pagination bounds for list endpoints.
const (
	defaultPageLimit = 100
	maxPageLimit     = 100
)

// getUserIDFromContext returns the user ID placed in the context by the auth middleware.
func getUserIDFromContext(r *http.Request) (int64, bool) {
	return shared.UserIDFromContext(r.Context())
}

// getPathID parses a positive int64 path parameter.
func getPathID(r *http.Request, paramName string) (int64, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return 0, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// parsePagination reads skip and limit query parameters. skip defaults to 0
// and must be non-negative; limit defaults to 100 and must be in 1..100.
func parsePagination(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	offset, limit = 0, defaultPageLimit

	if raw := q.Get("skip"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, domain.NewValidationError("skip", "must be a non-negative integer", domain.ErrValidation)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, domain.NewValidationError("limit", "must be between 1 and 100", domain.ErrValidation)
		}
	}
	return offset, limit, nil
}

// handleUserIDFromContext writes a 401 and returns false when no user is authenticated.
func handleUserIDFromContext(w http.ResponseWriter, r *http.Request, log *slog.Logger) (int64, bool) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return 0, false
	}
	return userID, true
}

// handlePathID writes a 400 and returns false when the path parameter is invalid.
func handlePathID(w http.ResponseWriter, r *http.Request, paramName string, log *slog.Logger) (int64, bool) {
	id, err := getPathID(r, paramName)
	if err != nil {
		log.Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return 0, false
	}
	return id, true
}

// parseAndValidateRequest decodes the body into req and validates it,
// writing a 400 and returning false on failure.
func parseAndValidateRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	log := logger.FromContextOrDefault(r.Context(), slog.Default())

	if err := shared.DecodeJSON(r, req); err != nil {
		log.Debug("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
