package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_capacity.lua
var reserveCapacityScript string

type Client struct {
	rdb            *redis.Client
	capacityScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:            rdb,
		capacityScript: redis.NewScript(reserveCapacityScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetLocationStock writes one location's stock snapshot as a hash of
// sku -> available. The snapshot feeds the router's inventory factor.
func (c *Client) SetLocationStock(ctx context.Context, locationCode string, stock map[string]int) error {
	key := fmt.Sprintf("stock:%s", locationCode)

	pipe := c.rdb.Pipeline()
	for sku, available := range stock {
		pipe.HSet(ctx, key, sku, available)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// GetLocationStock retrieves available quantities for the given SKUs at a
// location. Missing SKUs come back as zero.
func (c *Client) GetLocationStock(ctx context.Context, locationCode string, skus []string) (map[string]int, error) {
	key := fmt.Sprintf("stock:%s", locationCode)

	values, err := c.rdb.HMGet(ctx, key, skus...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stock for %s: %w", locationCode, err)
	}

	stock := make(map[string]int, len(skus))
	for i, sku := range skus {
		if values[i] == nil {
			stock[sku] = 0
			continue
		}
		s, ok := values[i].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected stock value type for %s/%s", locationCode, sku)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("bad stock value for %s/%s: %w", locationCode, sku, err)
		}
		stock[sku] = n
	}

	return stock, nil
}

// ReserveDailyCapacity atomically counts a routed order against a location's
// daily cap. Returns false when the location is at capacity for the day.
func (c *Client) ReserveDailyCapacity(ctx context.Context, locationCode string, maxDailyOrders int) (bool, error) {
	key := fmt.Sprintf("capacity:%s:%s", locationCode, time.Now().UTC().Format("2006-01-02"))
	ttl := int((48 * time.Hour).Seconds())

	result, err := c.capacityScript.Run(ctx, c.rdb, []string{key}, maxDailyOrders, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve capacity script failed: %w", err)
	}

	success, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return success == 1, nil
}

// GetDailyCapacity returns a location's routed-order count for today
func (c *Client) GetDailyCapacity(ctx context.Context, locationCode string) (int, error) {
	key := fmt.Sprintf("capacity:%s:%s", locationCode, time.Now().UTC().Format("2006-01-02"))

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// ClaimWebhookEvent claims a gateway event id for processing. Returns false
// if another delivery of the same event already claimed it.
func (c *Client) ClaimWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("webhook:%s", eventID), "1", ttl).Result()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
