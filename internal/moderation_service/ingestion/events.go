// Package ingestion carries normalized inbound SMS from provider webhooks to the
// moderation service, either directly or through NATS.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/app"
)

// SubjectPrefix is the NATS subject root for raw inbound SMS; the provider name is the
// last token, e.g. "sms.incoming.raw.twilio".
const SubjectPrefix = "sms.incoming.raw"

// InboundSMS is the normalized provider payload, also the NATS message body.
type InboundSMS struct {
	From                 string         `json:"from"`
	To                   string         `json:"to"`
	Text                 string         `json:"text"`
	MessageID            string         `json:"message_id"` // provider's id, used as the message key
	Timestamp            time.Time      `json:"timestamp"`  // when the provider received it
	ProviderSpecificData map[string]any `json:"provider_specific_data,omitempty"`
}

// InboundSMSEvent pairs a payload with the provider taken from the subject or URL.
type InboundSMSEvent struct {
	ProviderName string
	Data         InboundSMS
}

// SubmitRequest converts the event into the service's input.
func (e InboundSMSEvent) SubmitRequest() app.SubmitRequest {
	return app.SubmitRequest{
		ID:            e.Data.MessageID,
		Body:          e.Data.Text,
		SourceAddress: e.Data.From,
		Provider:      e.ProviderName,
	}
}

// Subject returns the NATS subject for provider.
func Subject(provider string) string {
	return SubjectPrefix + "." + provider
}

// ProviderFromSubject extracts the provider token from "sms.incoming.raw.<provider>".
func ProviderFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || strings.Join(parts[:3], ".") != SubjectPrefix {
		return "", fmt.Errorf("invalid inbound subject %q", subject)
	}
	provider := parts[3]
	if provider == "" || provider == "*" || provider == ">" {
		return "", fmt.Errorf("no provider in subject %q", subject)
	}
	return provider, nil
}

// Submitter is implemented by app.ModerationAppService.
type Submitter interface {
	Submit(ctx context.Context, req app.SubmitRequest) (*app.Outcome, error)
}
