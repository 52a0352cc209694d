package broker

import (
	"context"
	"fmt"

	"marketplace-core/internal/models"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCommissionRecorded publishes CommissionRecorded event
func (ep *EventPublisher) PublishCommissionRecorded(ctx context.Context, event *models.CommissionRecordedEvent) error {
	key := fmt.Sprintf("vendor-%s", event.VendorID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCommissionCollected publishes CommissionCollected event
func (ep *EventPublisher) PublishCommissionCollected(ctx context.Context, event *models.CommissionCollectedEvent) error {
	key := fmt.Sprintf("vendor-%s", event.VendorID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderRouted publishes OrderRouted event
func (ep *EventPublisher) PublishOrderRouted(ctx context.Context, event *models.OrderRoutedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPayoutEvent publishes a payout state transition event
func (ep *EventPublisher) PublishPayoutEvent(ctx context.Context, event *models.PayoutEvent) error {
	key := fmt.Sprintf("payout-%s", event.PayoutID)
	return ep.producer.PublishEvent(ctx, key, event)
}
