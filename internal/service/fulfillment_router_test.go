package service

import (
	"context"
	"testing"

	"marketplace-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func testLocation(code string, lat, lon float64) models.FulfillmentLocation {
	return models.FulfillmentLocation{
		Code:                code,
		Name:                code,
		Type:                models.LocationTypeWarehouse,
		Country:             "US",
		State:               "CA",
		Latitude:            ptr(lat),
		Longitude:           ptr(lon),
		ProcessingTimeHours: 24,
		FulfillmentRate:     0.95,
		ErrorRate:           0.02,
		HandlingFee:         100,
		PickPackFee:         50,
		MaxDailyOrders:      1000,
		Active:              true,
	}
}

func routeReq(items ...OrderItem) *RouteRequest {
	if len(items) == 0 {
		items = []OrderItem{{SKU: "SKU-1", VendorID: "v1", Quantity: 2, UnitPrice: 1000}}
	}
	return &RouteRequest{
		OrderID: "order-1",
		Destination: Address{
			Country:   "US",
			State:     "CA",
			City:      "San Francisco",
			Latitude:  ptr(37.77),
			Longitude: ptr(-122.42),
		},
		Items: items,
	}
}

func TestHaversineMiles(t *testing.T) {
	// New York to Los Angeles is roughly 2,450 miles.
	d := haversineMiles(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 2450, d, 20)

	// Zero distance for identical points.
	assert.InDelta(t, 0, haversineMiles(37.77, -122.42, 37.77, -122.42), 0.001)
}

func TestDistanceTierScore(t *testing.T) {
	assert.Equal(t, 100.0, distanceTierScore(10))
	assert.Equal(t, 90.0, distanceTierScore(50))
	assert.Equal(t, 80.0, distanceTierScore(150))
	assert.Equal(t, 70.0, distanceTierScore(300))
	assert.Equal(t, 50.0, distanceTierScore(500))
	assert.Equal(t, 30.0, distanceTierScore(1000))
	assert.Equal(t, 10.0, distanceTierScore(2000))
}

func TestCostTierScore(t *testing.T) {
	assert.Equal(t, 100.0, costTierScore(499))
	assert.Equal(t, 90.0, costTierScore(600))
	assert.Equal(t, 80.0, costTierScore(1200))
	assert.Equal(t, 70.0, costTierScore(1500))
	assert.Equal(t, 50.0, costTierScore(2500))
	assert.Equal(t, 30.0, costTierScore(4000))
	assert.Equal(t, 10.0, costTierScore(9000))
}

func TestEstimateDeliveryDays(t *testing.T) {
	// 24h processing rounds to 1 day; standard adds 3 transit days.
	assert.Equal(t, 4, estimateDeliveryDays(24, ServiceLevelStandard))
	assert.Equal(t, 3, estimateDeliveryDays(24, ServiceLevelExpress))
	assert.Equal(t, 2, estimateDeliveryDays(24, ServiceLevelOvernight))

	// Partial hours round up to a full processing day, so 25h and a
	// flat 48h both cost two processing days.
	assert.Equal(t, 3, estimateDeliveryDays(25, ServiceLevelOvernight))
	assert.Equal(t, 3, estimateDeliveryDays(48, ServiceLevelOvernight))

	// Instant processing ships same day.
	assert.Equal(t, 3, estimateDeliveryDays(0, ServiceLevelStandard))
}

func TestGeographicFallbackScore(t *testing.T) {
	dest := &Address{Country: "US", State: "CA", Zip: "94107"}

	sameState := models.FulfillmentLocation{State: "CA"}
	assert.Equal(t, 85.0, geographicFallbackScore(&sameState, dest))

	zoneMatch := models.FulfillmentLocation{State: "NV", ShippingZones: models.StringList{"CA", "OR"}}
	assert.Equal(t, 70.0, geographicFallbackScore(&zoneMatch, dest))

	noMatch := models.FulfillmentLocation{State: "NY", ShippingZones: models.StringList{"NJ"}}
	assert.Equal(t, 40.0, geographicFallbackScore(&noMatch, dest))
}

func TestWeightedScoreExample(t *testing.T) {
	// A nearby cheap fast reliable location must outscore a distant
	// expensive slow one when both hold full inventory.
	near := 0.25*100 + 0.20*100 + 0.25*90 + 0.20*100 + 0.10*96  // 40mi, $6.00, 1 day, 96%
	far := 0.25*100 + 0.20*50 + 0.25*80 + 0.20*50 + 0.10*90     // 800mi, $12.00, 5 days, 90%
	assert.Greater(t, near, far)
	assert.InDelta(t, 97.1, near, 0.01)
	assert.InDelta(t, 74.0, far, 0.01)
}

func TestRoutePicksNearestFullInventory(t *testing.T) {
	// Oakland (a few miles out) vs Las Vegas-ish (about 400 miles).
	near := testLocation("WH-NEAR", 37.80, -122.27)
	far := testLocation("WH-FAR", 36.17, -115.14)

	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{far, near}}
	stock := &fakeStock{stock: map[string]map[string]int{
		"WH-NEAR": {"SKU-1": 10},
		"WH-FAR":  {"SKU-1": 10},
	}}

	fr := NewFulfillmentRouter(locs, stock, nil, nil, "", 3)
	result, err := fr.Route(context.Background(), routeReq())
	require.NoError(t, err)

	assert.Equal(t, "WH-NEAR", result.Optimal.Location.Code)
	assert.True(t, result.Optimal.FullInventory)
	require.Len(t, result.Alternatives, 1)
	assert.Equal(t, "WH-FAR", result.Alternatives[0].Location.Code)
	assert.Equal(t, 2, result.Metadata.LocationsEvaluated)
	assert.Greater(t, result.Optimal.TotalScore, result.Alternatives[0].TotalScore)
}

func TestRoutePartialInventoryNeverBeatsFull(t *testing.T) {
	// The partial location is much closer; full inventory still wins on
	// the inventory factor cap.
	partial := testLocation("WH-PARTIAL", 37.80, -122.27)
	full := testLocation("WH-FULL", 34.05, -118.24)

	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{partial, full}}
	stock := &fakeStock{stock: map[string]map[string]int{
		"WH-PARTIAL": {"SKU-1": 1},
		"WH-FULL":    {"SKU-1": 10},
	}}

	fr := NewFulfillmentRouter(locs, stock, nil, nil, "", 3)
	result, err := fr.Route(context.Background(), routeReq())
	require.NoError(t, err)

	assert.Equal(t, "WH-FULL", result.Optimal.Location.Code)
	assert.True(t, result.Optimal.FullInventory)

	require.Len(t, result.Alternatives, 1)
	alt := result.Alternatives[0]
	assert.Equal(t, "WH-PARTIAL", alt.Location.Code)
	assert.True(t, alt.CanFulfill)
	assert.False(t, alt.FullInventory)
	// Partial coverage caps at 80: 1 of 2 units is 40.
	assert.InDelta(t, 40, alt.Scores.Inventory, 0.01)
}

func TestRouteSkipsZeroInventoryLocations(t *testing.T) {
	empty := testLocation("WH-EMPTY", 37.80, -122.27)
	stocked := testLocation("WH-STOCKED", 34.05, -118.24)

	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{empty, stocked}}
	stock := &fakeStock{stock: map[string]map[string]int{
		"WH-STOCKED": {"SKU-1": 5},
	}}

	fr := NewFulfillmentRouter(locs, stock, nil, nil, "", 3)
	result, err := fr.Route(context.Background(), routeReq())
	require.NoError(t, err)

	assert.Equal(t, "WH-STOCKED", result.Optimal.Location.Code)
	// Unfulfillable locations never appear as alternatives.
	assert.Empty(t, result.Alternatives)
}

func TestRouteNoFulfillableLocation(t *testing.T) {
	loc := testLocation("WH-1", 37.80, -122.27)
	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{loc}}
	stock := &fakeStock{stock: map[string]map[string]int{}}

	fr := NewFulfillmentRouter(locs, stock, nil, nil, "", 3)
	_, err := fr.Route(context.Background(), routeReq())
	assert.ErrorIs(t, err, ErrNoFulfillableLocation)
}

func TestRouteNoLocationsInCountry(t *testing.T) {
	fr := NewFulfillmentRouter(&fakeLocationStore{}, &fakeStock{}, nil, nil, "", 3)

	_, err := fr.Route(context.Background(), routeReq())
	assert.ErrorIs(t, err, ErrNoFulfillableLocation)
}

func TestRouteValidation(t *testing.T) {
	fr := NewFulfillmentRouter(&fakeLocationStore{}, &fakeStock{}, nil, nil, "", 3)

	var ve *ValidationError

	_, err := fr.Route(context.Background(), &RouteRequest{OrderID: "o", Items: []OrderItem{{SKU: "A", Quantity: 1}}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "destination.country", ve.Field)

	_, err = fr.Route(context.Background(), &RouteRequest{OrderID: "o", Destination: Address{Country: "US"}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "items", ve.Field)

	req := routeReq()
	req.ServiceLevel = "teleport"
	_, err = fr.Route(context.Background(), req)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "service_level", ve.Field)
}

func TestRouteCallerExclusions(t *testing.T) {
	near := testLocation("WH-NEAR", 37.80, -122.27)
	far := testLocation("WH-FAR", 34.05, -118.24)

	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{near, far}}
	stock := &fakeStock{stock: map[string]map[string]int{
		"WH-NEAR": {"SKU-1": 10},
		"WH-FAR":  {"SKU-1": 10},
	}}

	fr := NewFulfillmentRouter(locs, stock, nil, nil, "", 3)

	req := routeReq()
	req.ExcludeLocations = []string{"WH-NEAR"}
	result, err := fr.Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "WH-FAR", result.Optimal.Location.Code)
}

func TestRoutePreferBoostFlipsRanking(t *testing.T) {
	near := testLocation("WH-NEAR", 37.80, -122.27)
	far := testLocation("WH-FAR", 36.17, -115.14)

	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{near, far}}
	stock := &fakeStock{stock: map[string]map[string]int{
		"WH-NEAR": {"SKU-1": 10},
		"WH-FAR":  {"SKU-1": 10},
	}}

	fr := NewFulfillmentRouter(locs, stock, nil, nil, "", 3)

	// Unboosted, the near location wins by roughly the distance and cost
	// factors; two stacked preferences outweigh that margin.
	req := routeReq()
	req.PreferLocations = []string{"WH-FAR", "WH-FAR"}
	result, err := fr.Route(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "WH-FAR", result.Optimal.Location.Code)
	assert.Equal(t, 2*preferLocationBoost, result.Optimal.Boost)
}

func TestRouteExcludeRuleWinsOverPreference(t *testing.T) {
	near := testLocation("WH-NEAR", 37.80, -122.27)
	far := testLocation("WH-FAR", 34.05, -118.24)

	locs := &fakeLocationStore{
		locations: []models.FulfillmentLocation{near, far},
		rules: []models.RoutingRule{
			{Name: "block-near", FieldPath: "destination.state", Operator: models.OpEquals, Value: "CA",
				Action: models.ActionExcludeLocation, Target: "WH-NEAR", Priority: 100},
		},
	}
	stock := &fakeStock{stock: map[string]map[string]int{
		"WH-NEAR": {"SKU-1": 10},
		"WH-FAR":  {"SKU-1": 10},
	}}

	fr := NewFulfillmentRouter(locs, stock, nil, nil, "", 3)

	req := routeReq()
	req.PreferLocations = []string{"WH-NEAR"}
	result, err := fr.Route(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "WH-FAR", result.Optimal.Location.Code)
	assert.Equal(t, []string{"block-near"}, result.Metadata.RulesApplied)
}

func TestRouteSurchargeRaisesEstimatedCost(t *testing.T) {
	loc := testLocation("WH-1", 37.80, -122.27)
	stock := &fakeStock{stock: map[string]map[string]int{"WH-1": {"SKU-1": 10}}}

	base := NewFulfillmentRouter(&fakeLocationStore{locations: []models.FulfillmentLocation{loc}}, stock, nil, nil, "", 3)
	baseline, err := base.Route(context.Background(), routeReq())
	require.NoError(t, err)

	withRule := NewFulfillmentRouter(&fakeLocationStore{
		locations: []models.FulfillmentLocation{loc},
		rules: []models.RoutingRule{
			{Name: "ca-surcharge", FieldPath: "destination.state", Operator: models.OpEquals, Value: "CA",
				Action: models.ActionApplySurcharge, Target: "400", Priority: 10},
		},
	}, stock, nil, nil, "", 3)
	surcharged, err := withRule.Route(context.Background(), routeReq())
	require.NoError(t, err)

	assert.Equal(t, baseline.Optimal.EstimatedCost+400, surcharged.Optimal.EstimatedCost)
}

func TestRouteShippingMethodRuleOverridesServiceLevel(t *testing.T) {
	loc := testLocation("WH-1", 37.80, -122.27)
	stock := &fakeStock{stock: map[string]map[string]int{"WH-1": {"SKU-1": 10}}}

	fr := NewFulfillmentRouter(&fakeLocationStore{
		locations: []models.FulfillmentLocation{loc},
		rules: []models.RoutingRule{
			{Name: "force-overnight", FieldPath: "destination.state", Operator: models.OpEquals, Value: "CA",
				Action: models.ActionRequireShippingMethod, Target: ServiceLevelOvernight, Priority: 10},
		},
	}, stock, nil, nil, "", 3)

	req := routeReq()
	req.ServiceLevel = ServiceLevelStandard
	result, err := fr.Route(context.Background(), req)
	require.NoError(t, err)

	// Overnight base is 2499 vs standard 599; processing 24h + 1 transit day.
	assert.GreaterOrEqual(t, result.Optimal.EstimatedCost, int64(2499))
	assert.Equal(t, 2, result.Optimal.EstimatedDays)
}

func TestRouteFallbackScoringWithoutCoordinates(t *testing.T) {
	loc := testLocation("WH-1", 0, 0)
	loc.Latitude = nil
	loc.Longitude = nil
	loc.State = "CA"

	stock := &fakeStock{stock: map[string]map[string]int{"WH-1": {"SKU-1": 10}}}
	fr := NewFulfillmentRouter(&fakeLocationStore{locations: []models.FulfillmentLocation{loc}}, stock, nil, nil, "", 3)

	req := routeReq()
	req.Destination.Latitude = nil
	req.Destination.Longitude = nil

	result, err := fr.Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 85.0, result.Optimal.Scores.Distance)
}

type cappedCapacity struct {
	full map[string]bool
}

func (c *cappedCapacity) ReserveDailyCapacity(ctx context.Context, locationCode string, maxDailyOrders int) (bool, error) {
	return !c.full[locationCode], nil
}

func (c *cappedCapacity) GetDailyCapacity(ctx context.Context, locationCode string) (int, error) {
	return 0, nil
}

func TestRouteCommitSkipsLocationAtCapacity(t *testing.T) {
	near := testLocation("WH-NEAR", 37.80, -122.27)
	far := testLocation("WH-FAR", 34.05, -118.24)

	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{near, far}}
	stock := &fakeStock{stock: map[string]map[string]int{
		"WH-NEAR": {"SKU-1": 10},
		"WH-FAR":  {"SKU-1": 10},
	}}
	capacity := &cappedCapacity{full: map[string]bool{"WH-NEAR": true}}

	fr := NewFulfillmentRouter(locs, stock, capacity, nil, "", 3)

	// Simulation ignores capacity.
	result, err := fr.Route(context.Background(), routeReq())
	require.NoError(t, err)
	assert.Equal(t, "WH-NEAR", result.Optimal.Location.Code)

	// Commit passes over the capped location.
	req := routeReq()
	req.Commit = true
	result, err = fr.Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "WH-FAR", result.Optimal.Location.Code)
}

func TestRouteAlternativesCapped(t *testing.T) {
	var locations []models.FulfillmentLocation
	stockMap := make(map[string]map[string]int)
	for i, code := range []string{"WH-1", "WH-2", "WH-3", "WH-4", "WH-5"} {
		locations = append(locations, testLocation(code, 37.0+float64(i), -122.0))
		stockMap[code] = map[string]int{"SKU-1": 10}
	}

	fr := NewFulfillmentRouter(&fakeLocationStore{locations: locations}, &fakeStock{stock: stockMap}, nil, nil, "", 2)
	result, err := fr.Route(context.Background(), routeReq())
	require.NoError(t, err)

	assert.Len(t, result.Alternatives, 2)
	for _, alt := range result.Alternatives {
		assert.NotEqual(t, result.Optimal.Location.Code, alt.Location.Code)
	}
}

type countedCapacity struct {
	routed map[string]int
}

func (c *countedCapacity) ReserveDailyCapacity(ctx context.Context, locationCode string, maxDailyOrders int) (bool, error) {
	return true, nil
}

func (c *countedCapacity) GetDailyCapacity(ctx context.Context, locationCode string) (int, error) {
	return c.routed[locationCode], nil
}

func TestLocationStatus(t *testing.T) {
	loc := testLocation("WH-A", 37.80, -122.27)
	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{loc}}
	capacity := &countedCapacity{routed: map[string]int{"WH-A": 40}}

	fr := NewFulfillmentRouter(locs, &fakeStock{}, capacity, nil, "", 3)

	status, err := fr.Status(context.Background(), "WH-A")
	require.NoError(t, err)
	assert.Equal(t, "WH-A", status.Location.Code)
	assert.Equal(t, 40, status.RoutedToday)
	assert.Equal(t, loc.MaxDailyOrders-40, status.RemainingCapacity)
}

func TestLocationStatusWithoutCapacityTracking(t *testing.T) {
	loc := testLocation("WH-A", 37.80, -122.27)
	locs := &fakeLocationStore{locations: []models.FulfillmentLocation{loc}}

	fr := NewFulfillmentRouter(locs, &fakeStock{}, nil, nil, "", 3)

	status, err := fr.Status(context.Background(), "WH-A")
	require.NoError(t, err)
	assert.Equal(t, 0, status.RoutedToday)
	assert.Equal(t, loc.MaxDailyOrders, status.RemainingCapacity)
}

func TestLocationStatusUnknownLocation(t *testing.T) {
	fr := NewFulfillmentRouter(&fakeLocationStore{}, &fakeStock{}, nil, nil, "", 3)

	_, err := fr.Status(context.Background(), "WH-MISSING")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
