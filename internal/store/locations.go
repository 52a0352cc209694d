package store

import (
	"context"
	"database/sql"
	"time"

	"marketplace-core/internal/models"

	"github.com/lib/pq"
)

// ListActiveLocations retrieves active fulfillment locations for a country
func (s *Store) ListActiveLocations(ctx context.Context, country string) ([]models.FulfillmentLocation, error) {
	var locations []models.FulfillmentLocation
	err := s.db.SelectContext(ctx, &locations,
		"SELECT * FROM fulfillment_locations WHERE active = true AND country = $1 ORDER BY id",
		country)
	return locations, err
}

// GetLocationByCode retrieves a fulfillment location by its code
func (s *Store) GetLocationByCode(ctx context.Context, code string) (*models.FulfillmentLocation, error) {
	var location models.FulfillmentLocation
	err := s.db.GetContext(ctx, &location,
		"SELECT * FROM fulfillment_locations WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &location, nil
}

// ListActiveRules retrieves active routing rules valid at the given time,
// highest priority first.
func (s *Store) ListActiveRules(ctx context.Context, at time.Time) ([]models.RoutingRule, error) {
	var rules []models.RoutingRule
	err := s.db.SelectContext(ctx, &rules,
		`SELECT * FROM routing_rules
		 WHERE active = true
		   AND (valid_from IS NULL OR valid_from <= $1)
		   AND (valid_until IS NULL OR valid_until >= $1)
		 ORDER BY priority DESC, id`,
		at)
	return rules, err
}

// GetLocationStock retrieves a location's stock rows for the given SKUs
func (s *Store) GetLocationStock(ctx context.Context, locationCode string, skus []string) ([]models.LocationStock, error) {
	if len(skus) == 0 {
		return nil, nil
	}

	query := `SELECT * FROM location_stock WHERE location_code = $1 AND sku = ANY($2)`
	var stock []models.LocationStock
	err := s.db.SelectContext(ctx, &stock, query, locationCode, pq.Array(skus))
	return stock, err
}

// ListAllStock retrieves every stock row, used to seed the redis snapshot
func (s *Store) ListAllStock(ctx context.Context) ([]models.LocationStock, error) {
	var stock []models.LocationStock
	err := s.db.SelectContext(ctx, &stock,
		"SELECT * FROM location_stock ORDER BY location_code, sku")
	return stock, err
}
