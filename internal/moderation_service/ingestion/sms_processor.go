package ingestion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

// SMSProcessor hands inbound SMS to the moderation service.
type SMSProcessor struct {
	submitter Submitter
	logger    *slog.Logger
}

func NewSMSProcessor(submitter Submitter, logger *slog.Logger) *SMSProcessor {
	return &SMSProcessor{submitter: submitter, logger: logger.With("component", "sms_processor")}
}

func (p *SMSProcessor) ProcessMessage(ctx context.Context, event InboundSMSEvent) error {
	timer := prometheus.NewTimer(inboundSMSProcessingDurationHist.WithLabelValues(event.ProviderName))
	defer timer.ObserveDuration()

	out, err := p.submitter.Submit(ctx, event.SubmitRequest())
	if err != nil {
		status := "error_submit"
		if errors.Is(err, domain.ErrValidation) {
			status = "error_invalid"
		}
		inboundSMSProcessedCounter.WithLabelValues(event.ProviderName, status).Inc()
		p.logger.ErrorContext(ctx, "Failed to submit inbound SMS", "error", err,
			"provider_name", event.ProviderName, "provider_message_id", event.Data.MessageID)
		return err
	}

	status := "success"
	if !out.Applied {
		status = "duplicate"
	}
	inboundSMSProcessedCounter.WithLabelValues(event.ProviderName, status).Inc()
	p.logger.InfoContext(ctx, "Inbound SMS submitted",
		"provider_name", event.ProviderName, "message_id", out.Message.ID, "status", out.Message.Status)
	return nil
}

// Run processes events until ctx is cancelled. Failures are logged and the loop goes on;
// NATS core delivery is at-most-once so there is nothing to redeliver.
func (p *SMSProcessor) Run(ctx context.Context, events <-chan InboundSMSEvent) error {
	p.logger.InfoContext(ctx, "Starting inbound SMS processor worker")
	for {
		select {
		case event := <-events:
			_ = p.ProcessMessage(ctx, event)
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Inbound SMS processor worker shutting down")
			return nil
		}
	}
}
