package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Sink accepts an inbound SMS from the webhook.
type Sink interface {
	Accept(ctx context.Context, event InboundSMSEvent) error
}

// DirectSink submits in-process, used when no NATS server is configured.
type DirectSink struct {
	processor *SMSProcessor
}

func NewDirectSink(processor *SMSProcessor) *DirectSink {
	return &DirectSink{processor: processor}
}

func (s *DirectSink) Accept(ctx context.Context, event InboundSMSEvent) error {
	return s.processor.ProcessMessage(ctx, event)
}

// Publisher is implemented by messagebroker.NATSClient.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSSink publishes to sms.incoming.raw.<provider> for the SMSConsumer to pick up.
type NATSSink struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewNATSSink(publisher Publisher, logger *slog.Logger) *NATSSink {
	return &NATSSink{publisher: publisher, logger: logger.With("component", "nats_sink")}
}

func (s *NATSSink) Accept(ctx context.Context, event InboundSMSEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding inbound SMS: %w", err)
	}
	subject := Subject(event.ProviderName)
	if err := s.publisher.Publish(ctx, subject, data); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish inbound SMS", "error", err, "subject", subject)
		return err
	}
	s.logger.InfoContext(ctx, "Published inbound SMS", "subject", subject, "message_id", event.Data.MessageID)
	return nil
}
