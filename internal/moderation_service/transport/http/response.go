package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, logger *slog.Logger, code int, message string) {
	respondWithJSON(w, logger, code, ErrorResponse{Error: message})
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, domain.ErrValidation), errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError logs and writes err. Internal errors are not echoed to the client.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := statusForError(err)
	switch {
	case code >= http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "status_code", code)
	default:
		logger.InfoContext(r.Context(), "Request rejected", "error", err, "status_code", code)
	}
	message := err.Error()
	switch code {
	case http.StatusServiceUnavailable:
		message = "store unavailable, retry later"
	case http.StatusInternalServerError:
		message = "internal server error"
	}
	respondWithError(w, logger, code, message)
}
