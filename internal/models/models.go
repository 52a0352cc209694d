package models

import "time"

// Vendor types
const (
	VendorTypeShop        = "shop"
	VendorTypeBrand       = "brand"
	VendorTypeDistributor = "distributor"
)

// Commission tiers for shop vendors; brand and distributor rates are fixed
const (
	TierBronze = "bronze"
	TierSilver = "silver"
	TierGold   = "gold"
	TierFixed  = "fixed"
)

// Vendor represents an independent seller on the marketplace.
// CommissionRate, CommissionTier and the running totals are maintained by the
// commission engine; everything else is owned by vendor onboarding.
type Vendor struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Type              string    `db:"type" json:"type"`
	CommissionRate    float64   `db:"commission_rate" json:"commission_rate"`
	CommissionTier    string    `db:"commission_tier" json:"commission_tier"`
	PaymentAccountRef string    `db:"payment_account_ref" json:"payment_account_ref,omitempty"`
	PaymentAccountOK  bool      `db:"payment_account_ok" json:"payment_account_ok"`
	TotalRevenue      int64     `db:"total_revenue" json:"total_revenue"`
	TotalCommission   int64     `db:"total_commission" json:"total_commission"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Commission record statuses
const (
	CommissionStatusPending    = "PENDING"
	CommissionStatusCollected  = "COLLECTED"
	CommissionStatusProcessing = "PROCESSING"
	CommissionStatusPaid       = "PAID"
)

// CommissionRecord is the platform's cut of one vendor's share of one order.
// Amounts are integer cents; CommissionAmount + NetAmount == OrderTotal always.
type CommissionRecord struct {
	ID               int64     `db:"id" json:"id"`
	VendorID         string    `db:"vendor_id" json:"vendor_id"`
	OrderID          string    `db:"order_id" json:"order_id"`
	OrderTotal       int64     `db:"order_total" json:"order_total"`
	CommissionRate   float64   `db:"commission_rate" json:"commission_rate"`
	CommissionAmount int64     `db:"commission_amount" json:"commission_amount"`
	NetAmount        int64     `db:"net_amount" json:"net_amount"`
	Status           string    `db:"status" json:"status"`
	PayoutID         *string   `db:"payout_id" json:"payout_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// VendorMonthlyVolume tracks one vendor's sales for one calendar month.
// It is the only input to shop tier resolution.
type VendorMonthlyVolume struct {
	VendorID   string `db:"vendor_id" json:"vendor_id"`
	Month      int    `db:"month" json:"month"`
	Year       int    `db:"year" json:"year"`
	TotalSales int64  `db:"total_sales" json:"total_sales"`
	OrderCount int    `db:"order_count" json:"order_count"`
}

// Payout statuses; PAID and REVERSED are terminal, FAILED is retried by
// creating a fresh payout rather than re-driving the old one automatically.
const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusPaid       = "PAID"
	PayoutStatusFailed     = "FAILED"
	PayoutStatusReversed   = "REVERSED"
)

// Payout is a batched transfer of a vendor's accumulated net amounts.
type Payout struct {
	ID              string    `db:"id" json:"id"`
	VendorID        string    `db:"vendor_id" json:"vendor_id"`
	Amount          int64     `db:"amount" json:"amount"`
	CommissionTotal int64     `db:"commission_total" json:"commission_total"`
	AdjustmentTotal int64     `db:"adjustment_total" json:"adjustment_total"`
	CommissionCount int       `db:"commission_count" json:"commission_count"`
	Status          string    `db:"status" json:"status"`
	FailureReason   string    `db:"failure_reason" json:"failure_reason,omitempty"`
	PeriodStart     time.Time `db:"period_start" json:"period_start"`
	PeriodEnd       time.Time `db:"period_end" json:"period_end"`
	TransferRef     string    `db:"transfer_ref" json:"transfer_ref,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Payout adjustment types
const (
	AdjustmentTypeFee      = "fee"
	AdjustmentTypeBonus    = "bonus"
	AdjustmentTypeClawback = "clawback"
)

// PayoutAdjustment is a manual correction (fee, bonus, clawback) folded into
// a payout's total at creation time. Immutable once created.
type PayoutAdjustment struct {
	ID          int64     `db:"id" json:"id"`
	PayoutID    string    `db:"payout_id" json:"payout_id"`
	Type        string    `db:"type" json:"type"`
	Amount      int64     `db:"amount" json:"amount"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Fulfillment location types
const (
	LocationTypeWarehouse          = "warehouse"
	LocationTypeStore              = "store"
	LocationTypeDropship           = "dropship"
	LocationTypeDistributionCenter = "distribution_center"
)

// FulfillmentLocation is a warehouse/store/DC/dropship partner able to ship
// orders. Admin-managed configuration; the router never mutates it.
type FulfillmentLocation struct {
	ID                  int64      `db:"id" json:"id"`
	Code                string     `db:"code" json:"code"`
	Name                string     `db:"name" json:"name"`
	Type                string     `db:"type" json:"type"`
	Country             string     `db:"country" json:"country"`
	State               string     `db:"state" json:"state"`
	Latitude            *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude           *float64   `db:"longitude" json:"longitude,omitempty"`
	ShippingZones       StringList `db:"shipping_zones" json:"shipping_zones"`
	ProcessingTimeHours int        `db:"processing_time_hours" json:"processing_time_hours"`
	FulfillmentRate     float64    `db:"fulfillment_rate" json:"fulfillment_rate"`
	ErrorRate           float64    `db:"error_rate" json:"error_rate"`
	HandlingFee         int64      `db:"handling_fee" json:"handling_fee"`
	PickPackFee         int64      `db:"pick_pack_fee" json:"pick_pack_fee"`
	MaxDailyOrders      int        `db:"max_daily_orders" json:"max_daily_orders"`
	Active              bool       `db:"active" json:"active"`
}

// Routing rule operators
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// Routing rule actions
const (
	ActionRequireLocation       = "require_location"
	ActionExcludeLocation       = "exclude_location"
	ActionPreferLocation        = "prefer_location"
	ActionApplySurcharge        = "apply_surcharge"
	ActionRequireShippingMethod = "require_shipping_method"
)

// RoutingRule is an admin-defined condition/action pair that constrains or
// biases location selection. Higher priority evaluates first.
type RoutingRule struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	FieldPath  string     `db:"field_path" json:"field_path"`
	Operator   string     `db:"operator" json:"operator"`
	Value      string     `db:"value" json:"value"`
	Action     string     `db:"action" json:"action"`
	Target     string     `db:"target" json:"target"`
	Priority   int        `db:"priority" json:"priority"`
	Active     bool       `db:"active" json:"active"`
	ValidFrom  *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`
}

// LocationStock is one location's on-hand quantity for one SKU.
type LocationStock struct {
	LocationCode string `db:"location_code" json:"location_code"`
	SKU          string `db:"sku" json:"sku"`
	Available    int    `db:"available" json:"available"`
}

// ProcessedEvent for webhook idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
