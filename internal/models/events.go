package models

import "time"

// Event types published by this service
const (
	EventTypeCommissionRecorded  = "COMMISSION_RECORDED"
	EventTypeCommissionCollected = "COMMISSION_COLLECTED"
	EventTypeOrderRouted         = "ORDER_ROUTED"
	EventTypePayoutCreated       = "PAYOUT_CREATED"
	EventTypePayoutProcessing    = "PAYOUT_PROCESSING"
	EventTypePayoutPaid          = "PAYOUT_PAID"
	EventTypePayoutFailed        = "PAYOUT_FAILED"
	EventTypePayoutReversed      = "PAYOUT_REVERSED"
)

// Gateway webhook event types consumed from the payment provider
const (
	GatewayEventAccountUpdated   = "account.updated"
	GatewayEventTransferReversed = "transfer.reversed"
	GatewayEventPayoutPaid       = "payout.paid"
	GatewayEventPayoutFailed     = "payout.failed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CommissionRecordedEvent published when a commission record is created
type CommissionRecordedEvent struct {
	BaseEvent
	VendorID         string  `json:"vendor_id"`
	OrderID          string  `json:"order_id"`
	OrderTotal       int64   `json:"order_total"`
	CommissionRate   float64 `json:"commission_rate"`
	CommissionAmount int64   `json:"commission_amount"`
	NetAmount        int64   `json:"net_amount"`
}

// CommissionCollectedEvent published when a commission moves to COLLECTED
type CommissionCollectedEvent struct {
	BaseEvent
	VendorID string `json:"vendor_id"`
	OrderID  string `json:"order_id"`
}

// OrderRoutedEvent published when the router assigns an order to a location
type OrderRoutedEvent struct {
	BaseEvent
	OrderID       string  `json:"order_id"`
	LocationCode  string  `json:"location_code"`
	Score         float64 `json:"score"`
	EstimatedCost int64   `json:"estimated_cost"`
	EstimatedDays int     `json:"estimated_days"`
}

// PayoutEvent published on every payout state transition
type PayoutEvent struct {
	BaseEvent
	PayoutID    string `json:"payout_id"`
	VendorID    string `json:"vendor_id"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	TransferRef string `json:"transfer_ref,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// GatewayWebhookEvent is the provider's webhook payload, delivered either via
// the HTTP webhook endpoint or the payment-events topic. Delivery is
// at-least-once; EventID is the dedup key.
type GatewayWebhookEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	AccountRef     string    `json:"account_ref,omitempty"`
	TransferRef    string    `json:"transfer_ref,omitempty"`
	PayoutID       string    `json:"payout_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	PayoutsEnabled bool      `json:"payouts_enabled,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
