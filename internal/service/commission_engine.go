package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"marketplace-core/internal/models"
	"marketplace-core/internal/store"
	"marketplace-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Shop tier thresholds against trailing 3-month average monthly sales, in
// cents. Brand and distributor rates are fixed regardless of volume.
const (
	tierSilverThreshold = 50_000_00  // $50,000
	tierGoldThreshold   = 200_000_00 // $200,000

	rateBronze      = 15.0
	rateSilver      = 20.0
	rateGold        = 25.0
	rateBrand       = 10.0
	rateDistributor = 5.0
)

// CommissionStore is the persistence the engine needs. Implemented by
// store.Store.
type CommissionStore interface {
	CreateCommission(ctx context.Context, rec *models.CommissionRecord) error
	GetCommissionByOrderID(ctx context.Context, orderID string) (*models.CommissionRecord, error)
	MarkCommissionCollected(ctx context.Context, orderID string) (bool, error)
	MarkCommissionsPaid(ctx context.Context, payoutID string) error
	GetCommissionsByVendor(ctx context.Context, vendorID string, from, to time.Time) ([]models.CommissionRecord, error)
	GetCommissionReport(ctx context.Context, from, to time.Time) ([]store.CommissionStatusTotal, error)
	IncrementVendorTotals(ctx context.Context, vendorID string, revenue, commission int64) error
	UpsertMonthlyVolume(ctx context.Context, vendorID string, month, year int, sales int64) error
	GetMonthlyVolumes(ctx context.Context, vendorID string, months []models.VendorMonthlyVolume) ([]models.VendorMonthlyVolume, error)
	UpdateVendorTier(ctx context.Context, vendorID, tier string, rate float64) error
}

// CommissionPublisher publishes commission lifecycle events
type CommissionPublisher interface {
	PublishCommissionRecorded(ctx context.Context, event *models.CommissionRecordedEvent) error
	PublishCommissionCollected(ctx context.Context, event *models.CommissionCollectedEvent) error
}

// CommissionSplit is the result of a commission calculation
type CommissionSplit struct {
	Rate             float64 `json:"rate"`
	Tier             string  `json:"tier"`
	CommissionAmount int64   `json:"commission_amount"`
	NetAmount        int64   `json:"net_amount"`
}

// CommissionEngine computes commission rates, records commission transactions
// and tracks their lifecycle (pending -> collected -> paid).
type CommissionEngine struct {
	store     CommissionStore
	vendors   VendorDirectory
	publisher CommissionPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommissionEngine creates a new commission engine
func NewCommissionEngine(store CommissionStore, vendors VendorDirectory, publisher CommissionPublisher) *CommissionEngine {
	return &CommissionEngine{
		store:     store,
		vendors:   vendors,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// resolveRate returns the vendor's effective commission rate and tier.
// Shop vendors carry their prospectively-updated tiered rate; brand and
// distributor rates are fixed by type.
func resolveRate(vendor *models.Vendor) (float64, string) {
	switch vendor.Type {
	case models.VendorTypeBrand:
		return rateBrand, models.TierFixed
	case models.VendorTypeDistributor:
		return rateDistributor, models.TierFixed
	default:
		if vendor.CommissionRate > 0 {
			return vendor.CommissionRate, vendor.CommissionTier
		}
		return rateBronze, models.TierBronze
	}
}

// tierForAverage maps a trailing average monthly sales figure to a shop tier
func tierForAverage(avgCents int64) (string, float64) {
	switch {
	case avgCents >= tierGoldThreshold:
		return models.TierGold, rateGold
	case avgCents >= tierSilverThreshold:
		return models.TierSilver, rateSilver
	default:
		return models.TierBronze, rateBronze
	}
}

// splitAmount divides an amount in cents by the rate so that commission plus
// net always reconstructs the amount exactly.
func splitAmount(amount int64, rate float64) (commission, net int64) {
	commission = int64(math.Round(float64(amount) * rate / 100))
	return commission, amount - commission
}

// CalculateForVendor computes the split for an already-loaded vendor
func (ce *CommissionEngine) CalculateForVendor(vendor *models.Vendor, amount int64) CommissionSplit {
	rate, tier := resolveRate(vendor)
	commission, net := splitAmount(amount, rate)
	return CommissionSplit{
		Rate:             rate,
		Tier:             tier,
		CommissionAmount: commission,
		NetAmount:        net,
	}
}

// Calculate computes the commission split for a vendor and amount
func (ce *CommissionEngine) Calculate(ctx context.Context, vendorID string, amount int64) (*CommissionSplit, error) {
	vendor, err := ce.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return nil, &NotFoundError{Resource: "vendor", ID: vendorID}
	}

	split := ce.CalculateForVendor(vendor, amount)
	return &split, nil
}

// RecordCommission computes the split for a placed order, persists a PENDING
// commission record, rolls the vendor's running totals and monthly volume
// forward, then re-evaluates a shop vendor's tier prospectively. The new rate
// applies only to future orders.
func (ce *CommissionEngine) RecordCommission(ctx context.Context, orderID, vendorID string, orderTotal int64) (*models.CommissionRecord, error) {
	ctx, span := util.StartSpan(ctx, "CommissionEngine.RecordCommission")
	defer span.End()

	if orderTotal <= 0 {
		return nil, &ValidationError{Field: "order_total", Msg: "must be positive"}
	}

	vendor, err := ce.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return nil, &NotFoundError{Resource: "vendor", ID: vendorID}
	}
	if !vendor.Active {
		return nil, &InvalidStateError{Msg: fmt.Sprintf("vendor %s is not active", vendorID)}
	}

	split := ce.CalculateForVendor(vendor, orderTotal)

	rec := &models.CommissionRecord{
		VendorID:         vendorID,
		OrderID:          orderID,
		OrderTotal:       orderTotal,
		CommissionRate:   split.Rate,
		CommissionAmount: split.CommissionAmount,
		NetAmount:        split.NetAmount,
		Status:           models.CommissionStatusPending,
	}

	if err := ce.store.CreateCommission(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create commission record: %w", err)
	}

	if err := ce.store.IncrementVendorTotals(ctx, vendorID, orderTotal, split.CommissionAmount); err != nil {
		return nil, fmt.Errorf("failed to update vendor totals: %w", err)
	}

	now := ce.now()
	if err := ce.store.UpsertMonthlyVolume(ctx, vendorID, int(now.Month()), now.Year(), orderTotal); err != nil {
		return nil, fmt.Errorf("failed to update monthly volume: %w", err)
	}

	if vendor.Type == models.VendorTypeShop {
		if err := ce.reevaluateTier(ctx, vendor, now); err != nil {
			// Tier drift corrects itself on the next order; the commission
			// record is already durable.
			ce.logger.Error("Failed to re-evaluate vendor tier",
				zap.String("vendor_id", vendorID),
				zap.Error(err))
		}
	}

	util.CommissionsRecordedTotal.Inc()
	util.CommissionAmountCentsTotal.Add(float64(split.CommissionAmount))

	ce.logger.Info("Commission recorded",
		zap.String("order_id", orderID),
		zap.String("vendor_id", vendorID),
		zap.Int64("order_total", orderTotal),
		zap.Float64("rate", split.Rate),
		zap.Int64("commission", split.CommissionAmount))

	if ce.publisher != nil {
		event := &models.CommissionRecordedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCommissionRecorded,
				Timestamp: now,
			},
			VendorID:         vendorID,
			OrderID:          orderID,
			OrderTotal:       orderTotal,
			CommissionRate:   split.Rate,
			CommissionAmount: split.CommissionAmount,
			NetAmount:        split.NetAmount,
		}
		if err := ce.publisher.PublishCommissionRecorded(ctx, event); err != nil {
			ce.logger.Error("Failed to publish CommissionRecorded event", zap.Error(err))
		}
	}

	return rec, nil
}

// reevaluateTier recomputes a shop vendor's tier from the trailing 3-month
// average monthly sales, current month included.
func (ce *CommissionEngine) reevaluateTier(ctx context.Context, vendor *models.Vendor, now time.Time) error {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]models.VendorMonthlyVolume, 0, 3)
	for i := 0; i < 3; i++ {
		m := first.AddDate(0, -i, 0)
		months = append(months, models.VendorMonthlyVolume{Month: int(m.Month()), Year: m.Year()})
	}

	volumes, err := ce.store.GetMonthlyVolumes(ctx, vendor.ID, months)
	if err != nil {
		return fmt.Errorf("failed to load monthly volumes: %w", err)
	}

	var totalSales int64
	for _, v := range volumes {
		totalSales += v.TotalSales
	}
	avg := totalSales / 3

	tier, rate := tierForAverage(avg)
	if tier == vendor.CommissionTier && rate == vendor.CommissionRate {
		return nil
	}

	if err := ce.store.UpdateVendorTier(ctx, vendor.ID, tier, rate); err != nil {
		return fmt.Errorf("failed to update vendor tier: %w", err)
	}

	ce.logger.Info("Vendor tier updated",
		zap.String("vendor_id", vendor.ID),
		zap.String("from", vendor.CommissionTier),
		zap.String("to", tier),
		zap.Int64("trailing_avg", avg))

	return nil
}

// MarkCollected transitions a PENDING commission record to COLLECTED, called
// when the vendor's shipment is delivered.
func (ce *CommissionEngine) MarkCollected(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "CommissionEngine.MarkCollected")
	defer span.End()

	rec, err := ce.store.GetCommissionByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load commission record: %w", err)
	}
	if rec == nil {
		return &NotFoundError{Resource: "commission", ID: orderID}
	}

	ok, err := ce.store.MarkCommissionCollected(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark commission collected: %w", err)
	}
	if !ok {
		return &NotFoundError{Resource: "pending commission", ID: orderID}
	}

	util.CommissionsCollectedTotal.Inc()

	if ce.publisher != nil {
		event := &models.CommissionCollectedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCommissionCollected,
				Timestamp: ce.now(),
			},
			VendorID: rec.VendorID,
			OrderID:  orderID,
		}
		if err := ce.publisher.PublishCommissionCollected(ctx, event); err != nil {
			ce.logger.Error("Failed to publish CommissionCollected event", zap.Error(err))
		}
	}

	return nil
}

// MarkPaid bulk-transitions a payout's reserved commission records to PAID.
// Called only by the payout scheduler after a successful transfer.
func (ce *CommissionEngine) MarkPaid(ctx context.Context, payoutID string) error {
	if err := ce.store.MarkCommissionsPaid(ctx, payoutID); err != nil {
		return fmt.Errorf("failed to mark commissions paid: %w", err)
	}
	return nil
}

// VendorReport retrieves a vendor's commission records over a date range
func (ce *CommissionEngine) VendorReport(ctx context.Context, vendorID string, from, to time.Time) ([]models.CommissionRecord, error) {
	if to.Before(from) {
		return nil, &ValidationError{Field: "date_range", Msg: "end before start"}
	}

	vendor, err := ce.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return nil, &NotFoundError{Resource: "vendor", ID: vendorID}
	}

	return ce.store.GetCommissionsByVendor(ctx, vendorID, from, to)
}

// Report aggregates all commission records by status over a date range
func (ce *CommissionEngine) Report(ctx context.Context, from, to time.Time) ([]store.CommissionStatusTotal, error) {
	if to.Before(from) {
		return nil, &ValidationError{Field: "date_range", Msg: "end before start"}
	}
	return ce.store.GetCommissionReport(ctx, from, to)
}
