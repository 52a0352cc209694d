package service

import (
	"context"
	"testing"
	"time"

	"marketplace-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopVendor(id, tier string, rate float64) *models.Vendor {
	return &models.Vendor{
		ID:             id,
		Name:           "Shop " + id,
		Type:           models.VendorTypeShop,
		CommissionTier: tier,
		CommissionRate: rate,
		Active:         true,
	}
}

func newTestEngine(vendors ...*models.Vendor) (*CommissionEngine, *fakeCommissionStore, *fakeVendorDir) {
	dir := newFakeVendorDir(vendors...)
	store := newFakeCommissionStore(dir)
	engine := NewCommissionEngine(store, dir, nil)
	return engine, store, dir
}

func TestResolveRate(t *testing.T) {
	tests := []struct {
		name     string
		vendor   *models.Vendor
		wantRate float64
		wantTier string
	}{
		{"brand is fixed 10", &models.Vendor{Type: models.VendorTypeBrand, CommissionRate: 25}, 10, models.TierFixed},
		{"distributor is fixed 5", &models.Vendor{Type: models.VendorTypeDistributor, CommissionRate: 25}, 5, models.TierFixed},
		{"shop uses stored tier rate", shopVendor("v1", models.TierGold, 25), 25, models.TierGold},
		{"shop without rate defaults to bronze", &models.Vendor{Type: models.VendorTypeShop}, 15, models.TierBronze},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, tier := resolveRate(tt.vendor)
			assert.Equal(t, tt.wantRate, rate)
			assert.Equal(t, tt.wantTier, tier)
		})
	}
}

func TestTierForAverage(t *testing.T) {
	tests := []struct {
		avg      int64
		wantTier string
		wantRate float64
	}{
		{0, models.TierBronze, 15},
		{49_999_99, models.TierBronze, 15},
		{50_000_00, models.TierSilver, 20},
		{199_999_99, models.TierSilver, 20},
		{200_000_00, models.TierGold, 25},
		{500_000_00, models.TierGold, 25},
	}

	for _, tt := range tests {
		tier, rate := tierForAverage(tt.avg)
		assert.Equal(t, tt.wantTier, tier, "avg %d cents", tt.avg)
		assert.Equal(t, tt.wantRate, rate, "avg %d cents", tt.avg)
	}
}

func TestSplitAmountReconstructsTotal(t *testing.T) {
	amounts := []int64{1, 99, 100, 101, 333, 999, 1001, 12345, 100000, 7777777}
	rates := []float64{5, 10, 15, 20, 25}

	for _, amount := range amounts {
		for _, rate := range rates {
			commission, net := splitAmount(amount, rate)
			assert.Equal(t, amount, commission+net,
				"split of %d cents at %.0f%% must reconstruct exactly", amount, rate)
			assert.GreaterOrEqual(t, commission, int64(0))
		}
	}
}

func TestSplitAmountRounding(t *testing.T) {
	// 15% of 333 = 49.95, rounds to 50
	commission, net := splitAmount(333, 15)
	assert.Equal(t, int64(50), commission)
	assert.Equal(t, int64(283), net)

	// 20% of 101 = 20.2, rounds to 20
	commission, net = splitAmount(101, 20)
	assert.Equal(t, int64(20), commission)
	assert.Equal(t, int64(81), net)
}

func TestCalculateSilverShopExample(t *testing.T) {
	// A shop averaging $75k/month sits in silver and pays 20%:
	// a $1,000 order splits into $200 commission and $800 net.
	engine, _, _ := newTestEngine(shopVendor("v-silver", models.TierSilver, 20))

	split, err := engine.Calculate(context.Background(), "v-silver", 1000_00)
	require.NoError(t, err)

	assert.Equal(t, models.TierSilver, split.Tier)
	assert.Equal(t, 20.0, split.Rate)
	assert.Equal(t, int64(200_00), split.CommissionAmount)
	assert.Equal(t, int64(800_00), split.NetAmount)
}

func TestCalculateUnknownVendor(t *testing.T) {
	engine, _, _ := newTestEngine()

	_, err := engine.Calculate(context.Background(), "nope", 1000)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "vendor", nf.Resource)
}

func TestRecordCommission(t *testing.T) {
	vendor := shopVendor("v1", models.TierBronze, 15)
	engine, store, _ := newTestEngine(vendor)

	rec, err := engine.RecordCommission(context.Background(), "order-1", "v1", 10_000)
	require.NoError(t, err)

	assert.Equal(t, models.CommissionStatusPending, rec.Status)
	assert.Equal(t, int64(1_500), rec.CommissionAmount)
	assert.Equal(t, int64(8_500), rec.NetAmount)
	assert.Equal(t, rec.OrderTotal, rec.CommissionAmount+rec.NetAmount)

	// Running totals and monthly volume roll forward.
	assert.Equal(t, int64(10_000), vendor.TotalRevenue)
	assert.Equal(t, int64(1_500), vendor.TotalCommission)

	now := time.Now()
	vol := store.volumes[volumeKey("v1", int(now.Month()), now.Year())]
	require.NotNil(t, vol)
	assert.Equal(t, int64(10_000), vol.TotalSales)
	assert.Equal(t, 1, vol.OrderCount)
}

func TestRecordCommissionRejectsNonPositiveTotal(t *testing.T) {
	engine, store, _ := newTestEngine(shopVendor("v1", models.TierBronze, 15))

	_, err := engine.RecordCommission(context.Background(), "order-1", "v1", 0)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, store.records)
}

func TestRecordCommissionInactiveVendor(t *testing.T) {
	vendor := shopVendor("v1", models.TierBronze, 15)
	vendor.Active = false
	engine, _, _ := newTestEngine(vendor)

	_, err := engine.RecordCommission(context.Background(), "order-1", "v1", 1000)
	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
}

func TestRecordCommissionUpgradesTierProspectively(t *testing.T) {
	vendor := shopVendor("v1", models.TierBronze, 15)
	engine, store, _ := newTestEngine(vendor)

	fixed := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	// Seed two prior months so the trailing average crosses the silver
	// threshold: (70k + 60k + 50k) / 3 = $60k average.
	require.NoError(t, store.UpsertMonthlyVolume(context.Background(), "v1", 1, 2026, 70_000_00))
	require.NoError(t, store.UpsertMonthlyVolume(context.Background(), "v1", 2, 2026, 60_000_00))

	rec, err := engine.RecordCommission(context.Background(), "order-1", "v1", 50_000_00)
	require.NoError(t, err)

	// The order itself is still charged at the pre-upgrade bronze rate.
	assert.Equal(t, 15.0, rec.CommissionRate)

	// The vendor moves to silver for future orders.
	assert.Equal(t, models.TierSilver, vendor.CommissionTier)
	assert.Equal(t, 20.0, vendor.CommissionRate)

	rec2, err := engine.RecordCommission(context.Background(), "order-2", "v1", 1000_00)
	require.NoError(t, err)
	assert.Equal(t, 20.0, rec2.CommissionRate)
	assert.Equal(t, int64(200_00), rec2.CommissionAmount)
}

func TestRecordCommissionBrandTierNeverChanges(t *testing.T) {
	vendor := &models.Vendor{ID: "b1", Type: models.VendorTypeBrand, Active: true}
	engine, store, _ := newTestEngine(vendor)

	// Volume far above the gold threshold must not touch a brand vendor.
	require.NoError(t, store.UpsertMonthlyVolume(context.Background(), "b1", 1, 2026, 900_000_00))

	rec, err := engine.RecordCommission(context.Background(), "order-1", "b1", 1000_00)
	require.NoError(t, err)

	assert.Equal(t, 10.0, rec.CommissionRate)
	assert.Equal(t, int64(100_00), rec.CommissionAmount)
	assert.Empty(t, vendor.CommissionTier)
}

func TestTrailingAverageCountsEmptyMonths(t *testing.T) {
	// One $120k month followed by silence averages to $40k: bronze.
	vendor := shopVendor("v1", models.TierSilver, 20)
	engine, store, _ := newTestEngine(vendor)

	fixed := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	require.NoError(t, store.UpsertMonthlyVolume(context.Background(), "v1", 4, 2026, 120_000_00))

	_, err := engine.RecordCommission(context.Background(), "order-1", "v1", 100_00)
	require.NoError(t, err)

	assert.Equal(t, models.TierBronze, vendor.CommissionTier)
	assert.Equal(t, 15.0, vendor.CommissionRate)
}

func TestMarkCollected(t *testing.T) {
	engine, store, _ := newTestEngine(shopVendor("v1", models.TierBronze, 15))

	_, err := engine.RecordCommission(context.Background(), "order-1", "v1", 1000)
	require.NoError(t, err)

	require.NoError(t, engine.MarkCollected(context.Background(), "order-1"))
	assert.Equal(t, models.CommissionStatusCollected, store.records[0].Status)

	// A second collect finds no PENDING record.
	err = engine.MarkCollected(context.Background(), "order-1")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestMarkCollectedUnknownOrder(t *testing.T) {
	engine, _, _ := newTestEngine()

	err := engine.MarkCollected(context.Background(), "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestReportRejectsInvertedRange(t *testing.T) {
	engine, _, _ := newTestEngine()

	now := time.Now()
	_, err := engine.Report(context.Background(), now, now.Add(-time.Hour))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestReportAggregatesByStatus(t *testing.T) {
	engine, _, _ := newTestEngine(shopVendor("v1", models.TierBronze, 15))

	ctx := context.Background()
	_, err := engine.RecordCommission(ctx, "order-1", "v1", 1000)
	require.NoError(t, err)
	_, err = engine.RecordCommission(ctx, "order-2", "v1", 2000)
	require.NoError(t, err)
	require.NoError(t, engine.MarkCollected(ctx, "order-1"))

	rows, err := engine.Report(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	totals := make(map[string]int64)
	for _, row := range rows {
		totals[row.Status] = row.OrderTotal
	}
	assert.Equal(t, int64(2000), totals[models.CommissionStatusPending])
	assert.Equal(t, int64(1000), totals[models.CommissionStatusCollected])
}
