package consumer

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/ticketbottle-admission/internal/delivery/kafka"
)

// All three checkout outcomes release the user's admission. Releasing an
// already-absent membership is a no-op, so at-least-once redelivery is safe.

func (c *Consumer) HandleCheckoutCompleted(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.CheckoutCompletedEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleCheckoutCompleted: %v", err)
		return err
	}

	if err := c.qSvc.Leave(ctx, e.EventID, e.UserID); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleCheckoutCompleted: %v", err)
		return err
	}

	c.l.Info(ctx, "Released admission after completed checkout",
		"event_id", e.EventID,
		"user_id", e.UserID,
	)

	return nil
}

func (c *Consumer) HandleCheckoutFailed(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.CheckoutFailedEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleCheckoutFailed: %v", err)
		return err
	}

	if err := c.qSvc.Leave(ctx, e.EventID, e.UserID); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleCheckoutFailed: %v", err)
		return err
	}

	c.l.Info(ctx, "Released admission after failed checkout",
		"event_id", e.EventID,
		"user_id", e.UserID,
		"reason", e.Reason,
	)

	return nil
}

func (c *Consumer) HandleCheckoutExpired(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.CheckoutExpiredEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleCheckoutExpired: %v", err)
		return err
	}

	if err := c.qSvc.Leave(ctx, e.EventID, e.UserID); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleCheckoutExpired: %v", err)
		return err
	}

	c.l.Info(ctx, "Released admission after expired checkout",
		"event_id", e.EventID,
		"user_id", e.UserID,
	)

	return nil
}
