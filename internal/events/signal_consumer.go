package events

import (
	"context"
	"strings"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
)

// SignalHandler applies gateway payment signals to bookings.
type SignalHandler interface {
	ConfirmFromGateway(ctx context.Context, bookingID uuid.UUID, sessionID string) error
	MarkFailed(ctx context.Context, bookingID uuid.UUID, sessionID, reason string) error
}

// Deduplicator remembers processed message ids.
type Deduplicator interface {
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// PaymentSignalConsumer listens to payment.signals and routes them to the
// reconciler.
type PaymentSignalConsumer struct {
	consumer *kafka.Consumer
	handler  SignalHandler
	dedup    Deduplicator
	logger   *zap.Logger
}

// NewPaymentSignalConsumer creates a new consumer for payment signals.
func NewPaymentSignalConsumer(
	brokers []string,
	groupID string,
	handler SignalHandler,
	dedup Deduplicator,
	logger *zap.Logger,
) *PaymentSignalConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, TopicPaymentSignals, logger)
	return &PaymentSignalConsumer{
		consumer: consumer,
		handler:  handler,
		dedup:    dedup,
		logger:   logger,
	}
}

// Start begins consuming signals. It blocks until the context is cancelled.
func (c *PaymentSignalConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

func (c *PaymentSignalConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("dropping unreadable payment signal",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
		return nil
	}
	return c.HandleEvent(ctx, ce)
}

// HandleEvent processes one decoded signal. A replayed event id is skipped.
// When handling fails the id is released so the redelivery is processed.
func (c *PaymentSignalConsumer) HandleEvent(ctx context.Context, ce kafka.CloudEvent) error {
	c.logger.Info("received payment signal",
		zap.String("type", ce.Type),
		zap.String("id", ce.ID),
	)

	var signal PaymentSignal
	if err := ce.ParseData(&signal); err != nil {
		c.logger.Error("dropping payment signal with bad payload", zap.String("id", ce.ID), zap.Error(err))
		return nil
	}

	var route func() error
	switch {
	case strings.EqualFold(ce.Type, SignalPaymentSucceeded):
		route = func() error { return c.handler.ConfirmFromGateway(ctx, signal.BookingID, signal.SessionID) }
	case strings.EqualFold(ce.Type, SignalPaymentFailed):
		reason := signal.Reason
		if reason == "" {
			reason = "payment declined by gateway"
		}
		route = func() error { return c.handler.MarkFailed(ctx, signal.BookingID, signal.SessionID, reason) }
	default:
		c.logger.Debug("ignoring unhandled payment signal type", zap.String("type", ce.Type))
		return nil
	}

	first, err := c.dedup.Claim(ctx, ce.ID)
	if err != nil {
		// reconciler transitions are idempotent
		c.logger.Warn("signal dedup unavailable", zap.String("id", ce.ID), zap.Error(err))
		first = true
	}
	if !first {
		c.logger.Info("skipping replayed payment signal", zap.String("id", ce.ID))
		return nil
	}

	if err := route(); err != nil {
		if ferr := c.dedup.Forget(context.WithoutCancel(ctx), ce.ID); ferr != nil {
			c.logger.Warn("failed to release signal id", zap.String("id", ce.ID), zap.Error(ferr))
		}
		return err
	}
	return nil
}

// Close closes the underlying Kafka consumer.
func (c *PaymentSignalConsumer) Close() error {
	return c.consumer.Close()
}
