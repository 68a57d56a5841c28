package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subscriber is implemented by messagebroker.NATSClient.
type Subscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler func(*nats.Msg)) error
}

// SMSConsumer decodes inbound SMS from NATS and forwards them to the processing channel.
type SMSConsumer struct {
	subscriber  Subscriber
	logger      *slog.Logger
	outputChan  chan<- InboundSMSEvent
	sendTimeout time.Duration
}

func NewSMSConsumer(subscriber Subscriber, logger *slog.Logger, outputChan chan<- InboundSMSEvent) *SMSConsumer {
	return &SMSConsumer{
		subscriber:  subscriber,
		logger:      logger.With("component", "sms_consumer"),
		outputChan:  outputChan,
		sendTimeout: 5 * time.Second,
	}
}

// StartConsuming subscribes to subject (e.g. "sms.incoming.raw.*") within queueGroup and
// blocks until ctx is cancelled or the subscription fails.
func (c *SMSConsumer) StartConsuming(ctx context.Context, subject, queueGroup string) error {
	c.logger.InfoContext(ctx, "Starting NATS subscription", "subject", subject, "queue_group", queueGroup)
	err := c.subscriber.SubscribeToSubjectWithQueue(ctx, subject, queueGroup, func(msg *nats.Msg) {
		c.handleMsg(ctx, msg, subject)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "NATS subscription failed", "error", err, "subject", subject)
		return err
	}
	c.logger.InfoContext(ctx, "NATS subscription ended", "subject", subject)
	return nil
}

func (c *SMSConsumer) handleMsg(ctx context.Context, msg *nats.Msg, subscribedSubject string) {
	natsInboundSMSReceivedCounter.WithLabelValues(subscribedSubject).Inc()

	provider, err := ProviderFromSubject(msg.Subject)
	if err != nil {
		c.logger.ErrorContext(ctx, "Invalid NATS subject for inbound SMS", "error", err)
		return
	}

	var data InboundSMS
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		inboundSMSProcessedCounter.WithLabelValues(provider, "error_decode").Inc()
		c.logger.ErrorContext(ctx, "Failed to decode inbound SMS", "error", err, "subject", msg.Subject)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	select {
	case c.outputChan <- InboundSMSEvent{ProviderName: provider, Data: data}:
		c.logger.DebugContext(ctx, "Queued inbound SMS", "provider_name", provider, "message_id", data.MessageID)
	case <-sendCtx.Done():
		c.logger.ErrorContext(ctx, "Timed out queueing inbound SMS", "error", sendCtx.Err(),
			"provider_name", provider, "message_id", data.MessageID)
	}
}
