package service

import (
	"context"
	"fmt"

	"marketplace-core/internal/models"
	"marketplace-core/internal/util"

	"go.uber.org/zap"
)

// StockSource lists persisted stock rows. Implemented by store.Store.
type StockSource interface {
	ListAllStock(ctx context.Context) ([]models.LocationStock, error)
}

// StockCache writes the per-location stock snapshot. Implemented by
// redisclient.Client.
type StockCache interface {
	SetLocationStock(ctx context.Context, locationCode string, stock map[string]int) error
}

// StockSyncer pushes the database stock snapshot into redis so routing
// reads never hit postgres.
type StockSyncer struct {
	source StockSource
	cache  StockCache
	logger *zap.Logger
}

// NewStockSyncer creates a new stock syncer
func NewStockSyncer(source StockSource, cache StockCache) *StockSyncer {
	return &StockSyncer{
		source: source,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Sync copies every location's stock rows into redis
func (ss *StockSyncer) Sync(ctx context.Context) error {
	rows, err := ss.source.ListAllStock(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stock: %w", err)
	}

	byLocation := make(map[string]map[string]int)
	for _, row := range rows {
		if byLocation[row.LocationCode] == nil {
			byLocation[row.LocationCode] = make(map[string]int)
		}
		byLocation[row.LocationCode][row.SKU] = row.Available
	}

	for code, stock := range byLocation {
		if err := ss.cache.SetLocationStock(ctx, code, stock); err != nil {
			return fmt.Errorf("failed to sync stock for %s: %w", code, err)
		}
	}

	ss.logger.Info("Stock snapshot synced",
		zap.Int("locations", len(byLocation)),
		zap.Int("rows", len(rows)))

	return nil
}
