package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/app"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

// MessageService is the part of app.ModerationAppService the message routes use.
type MessageService interface {
	Now() time.Time
	Get(ctx context.Context, id string) (*domain.Message, error)
	ListPending(ctx context.Context) ([]*domain.Message, error)
	ListApproved(ctx context.Context) ([]*domain.Message, error)
	ListLive(ctx context.Context) ([]*domain.Message, error)
	Approve(ctx context.Context, id string) (*app.Outcome, error)
	Reject(ctx context.Context, id, reason string) (*app.Outcome, error)
	Activate(ctx context.Context, id string) (*app.Outcome, error)
	MarkPlayed(ctx context.Context, id string) (*app.Outcome, error)
	SweepExpired(ctx context.Context) (int, error)
}

type MessageHandler struct {
	service  MessageService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewMessageHandler(service MessageService, logger *slog.Logger, validate *validator.Validate) *MessageHandler {
	return &MessageHandler{
		service:  service,
		logger:   logger.With("handler", "message"),
		validate: validate,
	}
}

// RegisterRoutes registers message routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/messages/pending", h.listHandler("pending", h.service.ListPending))
	r.Get("/messages/approved", h.listHandler("approved", h.service.ListApproved))
	r.Get("/messages/live", h.listHandler("live", h.service.ListLive))
	r.Get("/messages/{message_id}", h.handleGetMessage)

	r.Post("/messages/approve", h.actionHandler("approve", func(ctx context.Context, req MessageActionRequest) (*app.Outcome, error) {
		return h.service.Approve(ctx, req.MessageID)
	}))
	r.Post("/messages/reject", h.actionHandler("reject", func(ctx context.Context, req MessageActionRequest) (*app.Outcome, error) {
		return h.service.Reject(ctx, req.MessageID, req.Reason)
	}))
	r.Post("/messages/activate", h.actionHandler("activate", func(ctx context.Context, req MessageActionRequest) (*app.Outcome, error) {
		return h.service.Activate(ctx, req.MessageID)
	}))
	r.Post("/messages/played", h.actionHandler("played", func(ctx context.Context, req MessageActionRequest) (*app.Outcome, error) {
		return h.service.MarkPlayed(ctx, req.MessageID)
	}))
	r.Post("/messages/sweep", h.handleSweep)
}

func (h *MessageHandler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
}

func (h *MessageHandler) listHandler(name string, list func(context.Context) ([]*domain.Message, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := h.requestLogger(r).With("list", name)
		msgs, err := list(r.Context())
		if err != nil {
			respondWithServiceError(w, r, logger, err)
			return
		}
		respondWithJSON(w, logger, http.StatusOK, toMessageListResponse(msgs, h.service.Now()))
	}
}

func (h *MessageHandler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	m, err := h.service.Get(r.Context(), chi.URLParam(r, "message_id"))
	if err != nil {
		respondWithServiceError(w, r, logger, err)
		return
	}
	respondWithJSON(w, logger, http.StatusOK, toMessageResponse(m, h.service.Now()))
}

func (h *MessageHandler) actionHandler(op string, act func(context.Context, MessageActionRequest) (*app.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := h.requestLogger(r).With("operation", op)

		var req MessageActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.WarnContext(ctx, "Failed to decode action request", "error", err)
			respondWithError(w, logger, http.StatusBadRequest, "Invalid request payload: "+err.Error())
			return
		}
		if err := h.validate.StructCtx(ctx, req); err != nil {
			respondWithServiceError(w, r, logger, fmt.Errorf("%w: %w", domain.ErrValidation, err))
			return
		}

		out, err := act(ctx, req)
		if err != nil {
			respondWithServiceError(w, r, logger, err)
			return
		}
		logger.InfoContext(ctx, "Message action handled", "message_id", out.Message.ID,
			"status", out.Message.Status, "applied", out.Applied)
		respondWithJSON(w, logger, http.StatusOK, toActionResponse(out, h.service.Now()))
	}
}

func (h *MessageHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	n, err := h.service.SweepExpired(r.Context())
	if err != nil {
		respondWithServiceError(w, r, logger, err)
		return
	}
	respondWithJSON(w, logger, http.StatusOK, SweepResponse{Expired: n})
}
