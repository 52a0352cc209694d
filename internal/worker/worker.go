package worker

import (
	"context"
	"encoding/json"
	"log"

	"marketplace-core/internal/broker"
	"marketplace-core/internal/models"
	"marketplace-core/internal/service"

	"github.com/segmentio/kafka-go"
)

// PaymentEventsWorker consumes payment gateway webhook events delivered over
// the payment-events topic and drives payout reconciliation. The handler is
// idempotent, so at-least-once delivery is safe.
type PaymentEventsWorker struct {
	consumer  *broker.Consumer
	scheduler *service.PayoutScheduler
}

// NewPaymentEventsWorker creates a new payment events worker
func NewPaymentEventsWorker(consumer *broker.Consumer, scheduler *service.PayoutScheduler) *PaymentEventsWorker {
	return &PaymentEventsWorker{
		consumer:  consumer,
		scheduler: scheduler,
	}
}

// Start starts the worker
func (w *PaymentEventsWorker) Start(ctx context.Context) error {
	log.Println("Starting payment events worker...")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var event models.GatewayWebhookEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("Failed to unmarshal gateway event: %v", err)
			// Poison message; committing it is better than redelivering forever.
			return nil
		}

		log.Printf("Processing gateway event: type=%s, id=%s", event.EventType, event.EventID)

		return w.scheduler.HandleTransferWebhook(ctx, &event)
	})
}

// Stop stops the worker
func (w *PaymentEventsWorker) Stop() error {
	log.Println("Stopping payment events worker...")
	return w.consumer.Close()
}
