package http

import (
	"math"
	"time"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/app"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

// MessageActionRequest is the body of POST /messages/{approve,reject,activate,played}.
type MessageActionRequest struct {
	MessageID string `json:"message_id" validate:"required,max=128"`
	Reason    string `json:"reason,omitempty" validate:"max=500"` // reject only
}

// MessageResponse is the wire shape of a message.
type MessageResponse struct {
	ID               string           `json:"pk"`
	Body             string           `json:"body"`
	FromNumber       string           `json:"from_number"`
	Provider         string           `json:"provider,omitempty"`
	Status           domain.Status    `json:"status"`
	RejectionReason  *string          `json:"rejection_reason,omitempty"`
	Advisory         *domain.Advisory `json:"advisory,omitempty"`
	PlayedAt         *time.Time       `json:"played_at,omitempty"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	RemainingSeconds *int64           `json:"remaining_seconds,omitempty"` // played messages only
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type MessageListResponse struct {
	Items []MessageResponse `json:"items"`
}

type MessageActionResponse struct {
	Item    MessageResponse `json:"item"`
	Applied bool            `json:"applied"`
}

type SweepResponse struct {
	Expired int `json:"expired"`
}

// InboundSMSRequest is the normalized JSON accepted on /incoming/sms/{provider_name}.
type InboundSMSRequest struct {
	From      string     `json:"from" validate:"required"`
	To        string     `json:"to"`
	Text      string     `json:"text" validate:"required"`
	MessageID string     `json:"message_id" validate:"omitempty,max=128"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Error string `json:"error"`
}

func toMessageResponse(m *domain.Message, now time.Time) MessageResponse {
	resp := MessageResponse{
		ID:              m.ID,
		Body:            m.Body,
		FromNumber:      m.SourceAddress,
		Provider:        m.Provider,
		Status:          m.Status,
		RejectionReason: m.RejectionReason,
		Advisory:        m.Advisory,
		PlayedAt:        m.PlayedAt,
		ExpiresAt:       m.ExpiresAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Status == domain.StatusPlayed {
		if remaining, ok := m.RemainingLifespan(now); ok {
			secs := int64(math.Ceil(remaining.Seconds()))
			resp.RemainingSeconds = &secs
		}
	}
	return resp
}

func toMessageListResponse(msgs []*domain.Message, now time.Time) MessageListResponse {
	items := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageResponse(m, now))
	}
	return MessageListResponse{Items: items}
}

func toActionResponse(out *app.Outcome, now time.Time) MessageActionResponse {
	return MessageActionResponse{Item: toMessageResponse(out.Message, now), Applied: out.Applied}
}
