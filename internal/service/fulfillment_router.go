package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"marketplace-core/internal/models"
	"marketplace-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Factor weights; they sum to 1 before any rule boost.
const (
	weightInventory   = 0.25
	weightDistance    = 0.20
	weightCost        = 0.25
	weightTime        = 0.20
	weightReliability = 0.10
)

// Service levels
const (
	ServiceLevelStandard  = "standard"
	ServiceLevelExpress   = "express"
	ServiceLevelOvernight = "overnight"
)

// LocationStore provides routing configuration. Implemented by store.Store.
type LocationStore interface {
	ListActiveLocations(ctx context.Context, country string) ([]models.FulfillmentLocation, error)
	GetLocationByCode(ctx context.Context, code string) (*models.FulfillmentLocation, error)
	ListActiveRules(ctx context.Context, at time.Time) ([]models.RoutingRule, error)
}

// StockChecker reports available quantities per SKU at one location.
// Backed by the redis stock snapshot.
type StockChecker interface {
	GetLocationStock(ctx context.Context, locationCode string, skus []string) (map[string]int, error)
}

// CapacityReserver counts committed routings against a location's daily cap
type CapacityReserver interface {
	ReserveDailyCapacity(ctx context.Context, locationCode string, maxDailyOrders int) (bool, error)
	GetDailyCapacity(ctx context.Context, locationCode string) (int, error)
}

// RoutingPublisher publishes routing assignments
type RoutingPublisher interface {
	PublishOrderRouted(ctx context.Context, event *models.OrderRoutedEvent) error
}

// Address is a shipping destination
type Address struct {
	Country   string   `json:"country" binding:"required"`
	State     string   `json:"state"`
	City      string   `json:"city"`
	Zip       string   `json:"zip"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// RouteRequest asks for the best fulfillment location for an order's items.
// Commit=false is a pure simulation; Commit=true counts the assignment
// against the chosen location's daily capacity and publishes the routing.
type RouteRequest struct {
	OrderID          string      `json:"order_id" binding:"required"`
	Destination      Address     `json:"destination" binding:"required"`
	Items            []OrderItem `json:"items" binding:"required,min=1"`
	ServiceLevel     string      `json:"service_level,omitempty"`
	ExcludeLocations []string    `json:"exclude_locations,omitempty"`
	PreferLocations  []string    `json:"prefer_locations,omitempty"`
	Commit           bool        `json:"commit,omitempty"`
}

// FactorScores are the five per-factor scores on a 0-100 scale
type FactorScores struct {
	Inventory   float64 `json:"inventory"`
	Distance    float64 `json:"distance"`
	Cost        float64 `json:"cost"`
	Time        float64 `json:"time"`
	Reliability float64 `json:"reliability"`
}

// RoutingOption is one scored candidate location
type RoutingOption struct {
	Location      *models.FulfillmentLocation `json:"location"`
	Scores        FactorScores                `json:"scores"`
	Boost         float64                     `json:"boost,omitempty"`
	TotalScore    float64                     `json:"total_score"`
	CanFulfill    bool                        `json:"can_fulfill"`
	FullInventory bool                        `json:"full_inventory"`
	EstimatedCost int64                       `json:"estimated_cost"`
	EstimatedDays int                         `json:"estimated_days"`
}

// RouteMetadata describes how a routing decision was reached
type RouteMetadata struct {
	LocationsEvaluated int      `json:"locations_evaluated"`
	RulesApplied       []string `json:"rules_applied"`
	ProcessingTimeMs   int64    `json:"processing_time_ms"`
}

// RouteResult is the routing decision: the optimal location plus ranked
// alternatives for operator override.
type RouteResult struct {
	Optimal                    *RoutingOption  `json:"optimal"`
	Alternatives               []RoutingOption `json:"alternatives"`
	TotalEstimatedCost         int64           `json:"total_estimated_cost"`
	TotalEstimatedDeliveryDays int             `json:"total_estimated_delivery_days"`
	Metadata                   RouteMetadata   `json:"metadata"`
}

// FulfillmentRouter scores candidate locations on inventory, distance, cost,
// time and reliability and picks the best single location per request.
// Splitting one order across locations is out of scope; the whole request
// always routes to one location.
type FulfillmentRouter struct {
	locations           LocationStore
	stock               StockChecker
	capacity            CapacityReserver
	publisher           RoutingPublisher
	logger              *zap.Logger
	defaultServiceLevel string
	maxAlternatives     int
}

// NewFulfillmentRouter creates a new fulfillment router
func NewFulfillmentRouter(locations LocationStore, stock StockChecker, capacity CapacityReserver, publisher RoutingPublisher, defaultServiceLevel string, maxAlternatives int) *FulfillmentRouter {
	if defaultServiceLevel == "" {
		defaultServiceLevel = ServiceLevelStandard
	}
	if maxAlternatives <= 0 {
		maxAlternatives = 3
	}
	return &FulfillmentRouter{
		locations:           locations,
		stock:               stock,
		capacity:            capacity,
		publisher:           publisher,
		logger:              util.GetLogger(),
		defaultServiceLevel: defaultServiceLevel,
		maxAlternatives:     maxAlternatives,
	}
}

// Route scores every eligible location and returns the optimal assignment
// plus ranked alternatives.
func (fr *FulfillmentRouter) Route(ctx context.Context, req *RouteRequest) (*RouteResult, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentRouter.Route")
	defer span.End()

	util.RoutingRequestsTotal.Inc()
	start := time.Now()
	defer func() {
		util.RoutingDuration.Observe(time.Since(start).Seconds())
	}()

	if err := fr.validate(req); err != nil {
		util.RoutingFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	if req.ServiceLevel == "" {
		req.ServiceLevel = fr.defaultServiceLevel
	}

	candidates, err := fr.locations.ListActiveLocations(ctx, req.Destination.Country)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	candidates = dropExcluded(candidates, req.ExcludeLocations)

	rules, err := fr.locations.ListActiveRules(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load routing rules: %w", err)
	}
	effects := applyRules(rules, req)

	// Caller preferences act like prefer_location rules.
	for _, code := range req.PreferLocations {
		effects.boosts[code] += preferLocationBoost
	}
	if effects.shippingMethod != "" {
		req.ServiceLevel = effects.shippingMethod
	}

	candidates = pruneByRules(candidates, effects)
	if len(candidates) == 0 {
		util.RoutingFailedTotal.WithLabelValues("no_candidates").Inc()
		return nil, ErrNoFulfillableLocation
	}

	options := make([]RoutingOption, 0, len(candidates))
	for i := range candidates {
		opt, err := fr.score(ctx, &candidates[i], req, effects)
		if err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	util.RoutingLocationsEvaluated.Observe(float64(len(options)))

	// Stable sort: ties keep first-seen order. Tie-breaking is arbitrary,
	// not business-meaningful.
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].TotalScore > options[j].TotalScore
	})

	optimal, alternatives, err := fr.selectOptimal(ctx, options, req.Commit)
	if err != nil {
		util.RoutingFailedTotal.WithLabelValues("no_fulfillable").Inc()
		return nil, err
	}

	result := &RouteResult{
		Optimal:                    optimal,
		Alternatives:               alternatives,
		TotalEstimatedCost:         optimal.EstimatedCost,
		TotalEstimatedDeliveryDays: optimal.EstimatedDays,
		Metadata: RouteMetadata{
			LocationsEvaluated: len(options),
			RulesApplied:       effects.applied,
			ProcessingTimeMs:   time.Since(start).Milliseconds(),
		},
	}

	fr.logger.Info("Order routed",
		zap.String("order_id", req.OrderID),
		zap.String("location", optimal.Location.Code),
		zap.Float64("score", optimal.TotalScore),
		zap.Int("evaluated", len(options)),
		zap.Bool("commit", req.Commit))

	if req.Commit && fr.publisher != nil {
		event := &models.OrderRoutedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderRouted,
				Timestamp: time.Now(),
			},
			OrderID:       req.OrderID,
			LocationCode:  optimal.Location.Code,
			Score:         optimal.TotalScore,
			EstimatedCost: optimal.EstimatedCost,
			EstimatedDays: optimal.EstimatedDays,
		}
		if err := fr.publisher.PublishOrderRouted(ctx, event); err != nil {
			fr.logger.Error("Failed to publish OrderRouted event", zap.Error(err))
		}
	}

	return result, nil
}

// LocationStatus is a location's configuration plus today's routing load
type LocationStatus struct {
	Location          *models.FulfillmentLocation `json:"location"`
	RoutedToday       int                         `json:"routed_today"`
	RemainingCapacity int                         `json:"remaining_capacity"`
}

// Status reports a location's configuration and remaining daily capacity
func (fr *FulfillmentRouter) Status(ctx context.Context, locationCode string) (*LocationStatus, error) {
	loc, err := fr.locations.GetLocationByCode(ctx, locationCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	if loc == nil {
		return nil, &NotFoundError{Resource: "location", ID: locationCode}
	}

	var routed int
	if fr.capacity != nil {
		routed, err = fr.capacity.GetDailyCapacity(ctx, locationCode)
		if err != nil {
			return nil, fmt.Errorf("failed to read daily capacity: %w", err)
		}
	}

	remaining := loc.MaxDailyOrders - routed
	if loc.MaxDailyOrders <= 0 || remaining < 0 {
		remaining = 0
	}

	return &LocationStatus{
		Location:          loc,
		RoutedToday:       routed,
		RemainingCapacity: remaining,
	}, nil
}

func (fr *FulfillmentRouter) validate(req *RouteRequest) error {
	if req.Destination.Country == "" {
		return &ValidationError{Field: "destination.country", Msg: "required"}
	}
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Msg: "order has no items"}
	}
	switch req.ServiceLevel {
	case "", ServiceLevelStandard, ServiceLevelExpress, ServiceLevelOvernight:
	default:
		return &ValidationError{Field: "service_level", Msg: "unknown service level"}
	}
	return nil
}

// selectOptimal picks the highest-scoring fulfillable option. When committing,
// a location at its daily cap is passed over for the next fulfillable one.
func (fr *FulfillmentRouter) selectOptimal(ctx context.Context, options []RoutingOption, commit bool) (*RoutingOption, []RoutingOption, error) {
	var optimal *RoutingOption
	var optimalIdx int
	for i := range options {
		if !options[i].CanFulfill {
			continue
		}
		if commit && fr.capacity != nil {
			ok, err := fr.capacity.ReserveDailyCapacity(ctx, options[i].Location.Code, options[i].Location.MaxDailyOrders)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to reserve capacity at %s: %w", options[i].Location.Code, err)
			}
			if !ok {
				fr.logger.Warn("Location at daily capacity, skipping",
					zap.String("location", options[i].Location.Code))
				continue
			}
		}
		optimal = &options[i]
		optimalIdx = i
		break
	}
	if optimal == nil {
		return nil, nil, ErrNoFulfillableLocation
	}

	alternatives := make([]RoutingOption, 0, fr.maxAlternatives)
	for i := range options {
		if i == optimalIdx || !options[i].CanFulfill {
			continue
		}
		alternatives = append(alternatives, options[i])
		if len(alternatives) == fr.maxAlternatives {
			break
		}
	}

	return optimal, alternatives, nil
}

// score computes the five factor scores and the weighted total for one
// candidate location.
func (fr *FulfillmentRouter) score(ctx context.Context, loc *models.FulfillmentLocation, req *RouteRequest, effects *ruleEffects) (RoutingOption, error) {
	inventoryScore, canFulfill, full, err := fr.inventoryFactor(ctx, loc, req.Items)
	if err != nil {
		return RoutingOption{}, err
	}

	distanceMiles, haveDistance := distanceTo(loc, &req.Destination)
	var distanceScore float64
	if haveDistance {
		distanceScore = distanceTierScore(distanceMiles)
	} else {
		distanceScore = geographicFallbackScore(loc, &req.Destination)
		// No coordinates: assume a mid-range haul for cost estimation.
		distanceMiles = 500
	}

	estimatedCost := estimateShippingCents(distanceMiles, req.ServiceLevel) + loc.HandlingFee + loc.PickPackFee + effects.surcharge
	costScore := costTierScore(estimatedCost)

	estimatedDays := estimateDeliveryDays(loc.ProcessingTimeHours, req.ServiceLevel)
	timeScore := timeTierScore(estimatedDays)

	reliabilityScore := loc.FulfillmentRate * 100 * (1 - loc.ErrorRate)

	boost := effects.boosts[loc.Code]
	total := weightInventory*inventoryScore +
		weightDistance*distanceScore +
		weightCost*costScore +
		weightTime*timeScore +
		weightReliability*reliabilityScore +
		boost

	return RoutingOption{
		Location: loc,
		Scores: FactorScores{
			Inventory:   inventoryScore,
			Distance:    distanceScore,
			Cost:        costScore,
			Time:        timeScore,
			Reliability: reliabilityScore,
		},
		Boost:         boost,
		TotalScore:    total,
		CanFulfill:    canFulfill,
		FullInventory: full,
		EstimatedCost: estimatedCost,
		EstimatedDays: estimatedDays,
	}, nil
}

// inventoryFactor scores availability: 100 when every line is fully covered,
// proportional up to 80 for partial coverage, 0 when nothing is available.
func (fr *FulfillmentRouter) inventoryFactor(ctx context.Context, loc *models.FulfillmentLocation, items []OrderItem) (score float64, canFulfill, full bool, err error) {
	skus := make([]string, len(items))
	for i, item := range items {
		skus[i] = item.SKU
	}

	stock, err := fr.stock.GetLocationStock(ctx, loc.Code, skus)
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to check stock at %s: %w", loc.Code, err)
	}

	var requested, satisfied int
	for _, item := range items {
		requested += item.Quantity
		available := stock[item.SKU]
		if available >= item.Quantity {
			satisfied += item.Quantity
		} else {
			satisfied += available
		}
	}

	if requested == 0 {
		return 0, false, false, nil
	}

	fraction := float64(satisfied) / float64(requested)
	switch {
	case fraction >= 1:
		return 100, true, true, nil
	case fraction > 0:
		return fraction * 80, true, false, nil
	default:
		return 0, false, false, nil
	}
}

// haversineMiles is the great-circle distance between two points
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMiles = 3959

	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func distanceTo(loc *models.FulfillmentLocation, dest *Address) (float64, bool) {
	if loc.Latitude == nil || loc.Longitude == nil || dest.Latitude == nil || dest.Longitude == nil {
		return 0, false
	}
	return haversineMiles(*loc.Latitude, *loc.Longitude, *dest.Latitude, *dest.Longitude), true
}

func distanceTierScore(miles float64) float64 {
	switch {
	case miles < 50:
		return 100
	case miles < 150:
		return 90
	case miles < 300:
		return 80
	case miles < 500:
		return 70
	case miles < 1000:
		return 50
	case miles < 2000:
		return 30
	default:
		return 10
	}
}

// geographicFallbackScore scores distance from state and shipping-zone
// membership when either side is missing coordinates.
func geographicFallbackScore(loc *models.FulfillmentLocation, dest *Address) float64 {
	if loc.State != "" && loc.State == dest.State {
		return 85
	}
	if loc.ShippingZones.Contains(dest.State) || loc.ShippingZones.Contains(dest.Zip) {
		return 70
	}
	return 40
}

// estimateShippingCents estimates carrier cost from distance and service
// level: a flat base per level plus mileage.
func estimateShippingCents(miles float64, serviceLevel string) int64 {
	var base int64
	switch serviceLevel {
	case ServiceLevelOvernight:
		base = 2499
	case ServiceLevelExpress:
		base = 1299
	default:
		base = 599
	}
	return base + int64(miles*2)
}

func costTierScore(cents int64) float64 {
	switch {
	case cents < 500:
		return 100
	case cents < 1000:
		return 90
	case cents < 1500:
		return 80
	case cents < 2000:
		return 70
	case cents < 3000:
		return 50
	case cents < 5000:
		return 30
	default:
		return 10
	}
}

func transitDays(serviceLevel string) int {
	switch serviceLevel {
	case ServiceLevelOvernight:
		return 1
	case ServiceLevelExpress:
		return 2
	default:
		return 3
	}
}

func estimateDeliveryDays(processingHours int, serviceLevel string) int {
	processingDays := (processingHours + 23) / 24
	return processingDays + transitDays(serviceLevel)
}

func timeTierScore(days int) float64 {
	switch {
	case days <= 1:
		return 100
	case days <= 2:
		return 90
	case days <= 3:
		return 80
	case days <= 4:
		return 65
	case days <= 5:
		return 50
	case days <= 7:
		return 35
	default:
		return 20
	}
}

func dropExcluded(locations []models.FulfillmentLocation, excluded []string) []models.FulfillmentLocation {
	if len(excluded) == 0 {
		return locations
	}
	skip := make(map[string]bool, len(excluded))
	for _, code := range excluded {
		skip[code] = true
	}
	out := locations[:0]
	for _, loc := range locations {
		if !skip[loc.Code] {
			out = append(out, loc)
		}
	}
	return out
}

// pruneByRules applies require/exclude effects to the candidate set.
// Exclusions win over requirements.
func pruneByRules(locations []models.FulfillmentLocation, effects *ruleEffects) []models.FulfillmentLocation {
	out := locations[:0]
	for _, loc := range locations {
		if effects.excluded[loc.Code] {
			continue
		}
		if len(effects.required) > 0 && !effects.required[loc.Code] {
			continue
		}
		out = append(out, loc)
	}
	return out
}
