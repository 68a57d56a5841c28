package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

// SettingsService is the part of app.ModerationAppService the settings routes use.
type SettingsService interface {
	GetSettings(ctx context.Context) (*domain.Settings, error)
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error)
}

type SettingsHandler struct {
	service SettingsService
	logger  *slog.Logger
}

func NewSettingsHandler(service SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{service: service, logger: logger.With("handler", "settings")}
}

func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.handleGetSettings)
	r.Post("/settings", h.handleUpdateSettings)
}

func (h *SettingsHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		respondWithServiceError(w, r, logger, err)
		return
	}
	respondWithJSON(w, logger, http.StatusOK, settings)
}

// handleUpdateSettings merges a partial settings object. Keys outside the settings
// record are refused rather than ignored.
func (h *SettingsHandler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var patch domain.SettingsPatch
	if err := dec.Decode(&patch); err != nil {
		logger.WarnContext(ctx, "Failed to decode settings update", "error", err)
		respondWithError(w, logger, http.StatusBadRequest, "Invalid settings payload: "+err.Error())
		return
	}

	updated, err := h.service.UpdateSettings(ctx, patch)
	if err != nil {
		respondWithServiceError(w, r, logger, err)
		return
	}
	logger.InfoContext(ctx, "Settings updated", "version", updated.Version)
	respondWithJSON(w, logger, http.StatusOK, updated)
}
