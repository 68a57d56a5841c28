package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/ingestion"
)

const maxInboundBodyBytes = 64 << 10

// IncomingHandler receives provider webhooks and hands them to an ingestion.Sink.
type IncomingHandler struct {
	sink     ingestion.Sink
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewIncomingHandler(sink ingestion.Sink, logger *slog.Logger, validate *validator.Validate) *IncomingHandler {
	return &IncomingHandler{
		sink:     sink,
		logger:   logger.With("handler", "incoming"),
		validate: validate,
		now:      time.Now,
	}
}

func (h *IncomingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/incoming/sms/{provider_name}", h.HandleIncomingSMSCallback)
}

// HandleIncomingSMSCallback accepts either the normalized JSON request or a
// form-encoded Twilio webhook (From, To, Body, MessageSid).
func (h *IncomingHandler) HandleIncomingSMSCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	providerName := chi.URLParam(r, "provider_name")
	if providerName == "" {
		respondWithError(w, logger, http.StatusBadRequest, "Provider name is required")
		return
	}
	logger = logger.With("provider_name", providerName)
	r.Body = http.MaxBytesReader(w, r.Body, maxInboundBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	form := mediaType == "application/x-www-form-urlencoded"

	var (
		data ingestion.InboundSMS
		err  error
	)
	if form {
		data, err = h.decodeTwilioForm(r)
	} else {
		data, err = h.decodeJSON(r)
	}
	if err != nil {
		logger.WarnContext(ctx, "Rejected incoming SMS", "error", err)
		respondWithError(w, logger, http.StatusBadRequest, err.Error())
		return
	}
	if data.MessageID == "" {
		data.MessageID = uuid.NewString()
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = h.now().UTC()
	}

	if err := h.sink.Accept(ctx, ingestion.InboundSMSEvent{ProviderName: providerName, Data: data}); err != nil {
		respondWithServiceError(w, r, logger, err)
		return
	}
	logger.InfoContext(ctx, "Incoming SMS accepted", "message_id", data.MessageID)

	if form {
		// Twilio only needs a 2xx; an empty body sends no reply SMS.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")
		return
	}
	respondWithJSON(w, logger, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"message_id": data.MessageID,
	})
}

func (h *IncomingHandler) decodeJSON(r *http.Request) (ingestion.InboundSMS, error) {
	var req InboundSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ingestion.InboundSMS{}, fmt.Errorf("invalid JSON format: %w", err)
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		return ingestion.InboundSMS{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	data := ingestion.InboundSMS{From: req.From, To: req.To, Text: req.Text, MessageID: req.MessageID}
	if req.Timestamp != nil {
		data.Timestamp = req.Timestamp.UTC()
	}
	return data, nil
}

func (h *IncomingHandler) decodeTwilioForm(r *http.Request) (ingestion.InboundSMS, error) {
	if err := r.ParseForm(); err != nil {
		return ingestion.InboundSMS{}, fmt.Errorf("invalid form payload: %w", err)
	}
	data := ingestion.InboundSMS{
		From:      r.PostForm.Get("From"),
		To:        r.PostForm.Get("To"),
		Text:      r.PostForm.Get("Body"),
		MessageID: r.PostForm.Get("MessageSid"),
	}
	if data.From == "" || data.Text == "" {
		return ingestion.InboundSMS{}, fmt.Errorf("%w: From and Body are required", domain.ErrValidation)
	}
	if sid := r.PostForm.Get("AccountSid"); sid != "" {
		data.ProviderSpecificData = map[string]any{"account_sid": sid}
	}
	return data, nil
}
