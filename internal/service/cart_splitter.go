package service

import (
	"context"
	"fmt"

	"marketplace-core/internal/models"
	"marketplace-core/internal/util"

	"go.uber.org/zap"
)

// VendorDirectory resolves vendor records. Implemented by the store; vendors
// are read-only to the splitter and router.
type VendorDirectory interface {
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
	ListActiveVendors(ctx context.Context, ids []string) ([]models.Vendor, error)
}

// OrderItem is one line item of an incoming order. Every item must carry the
// owning vendor's ID.
type OrderItem struct {
	SKU       string `json:"sku" binding:"required"`
	VendorID  string `json:"vendor_id"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	UnitPrice int64  `json:"unit_price" binding:"required,min=0"`
	Category  string `json:"category,omitempty"`
}

// SplitOrder is the input to a cart split: an order whose items may belong to
// several vendors.
type SplitOrder struct {
	OrderID string      `json:"order_id" binding:"required"`
	Items   []OrderItem `json:"items" binding:"required,min=1"`
}

// VendorDraft is one vendor's share of a split order with its commission
// pre-computed. Persisting vendor orders is the caller's responsibility.
type VendorDraft struct {
	Vendor           *models.Vendor `json:"vendor"`
	Items            []OrderItem    `json:"items"`
	Subtotal         int64          `json:"subtotal"`
	CommissionRate   float64        `json:"commission_rate"`
	CommissionAmount int64          `json:"commission_amount"`
	NetAmount        int64          `json:"net_amount"`
}

// CartSplitter groups an order's items by owning vendor and computes each
// vendor's split. Pure computation: nothing is persisted.
type CartSplitter struct {
	vendors VendorDirectory
	engine  *CommissionEngine
	logger  *zap.Logger
}

// NewCartSplitter creates a new cart splitter
func NewCartSplitter(vendors VendorDirectory, engine *CommissionEngine) *CartSplitter {
	return &CartSplitter{
		vendors: vendors,
		engine:  engine,
		logger:  util.GetLogger(),
	}
}

// Split groups the order's items by vendor and returns one draft per vendor.
// Items without a vendor tag fail validation; a group owned by an inactive
// vendor fails the whole call.
func (cs *CartSplitter) Split(ctx context.Context, order *SplitOrder) ([]VendorDraft, error) {
	ctx, span := util.StartSpan(ctx, "CartSplitter.Split")
	defer span.End()

	if len(order.Items) == 0 {
		util.CartSplitsFailedTotal.WithLabelValues("empty_order").Inc()
		return nil, &ValidationError{Field: "items", Msg: "order has no items"}
	}

	// Group by vendor, preserving first-seen vendor order.
	groups := make(map[string][]OrderItem)
	var vendorOrder []string
	for i, item := range order.Items {
		if item.VendorID == "" {
			util.CartSplitsFailedTotal.WithLabelValues("missing_vendor").Inc()
			return nil, &ValidationError{
				Field: fmt.Sprintf("items[%d].vendor_id", i),
				Msg:   "item has no owning vendor",
			}
		}
		if item.Quantity <= 0 {
			util.CartSplitsFailedTotal.WithLabelValues("bad_quantity").Inc()
			return nil, &ValidationError{
				Field: fmt.Sprintf("items[%d].quantity", i),
				Msg:   "quantity must be positive",
			}
		}
		if _, seen := groups[item.VendorID]; !seen {
			vendorOrder = append(vendorOrder, item.VendorID)
		}
		groups[item.VendorID] = append(groups[item.VendorID], item)
	}

	drafts := make([]VendorDraft, 0, len(vendorOrder))
	for _, vendorID := range vendorOrder {
		vendor, err := cs.vendors.GetVendor(ctx, vendorID)
		if err != nil {
			return nil, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
		}
		if vendor == nil {
			util.CartSplitsFailedTotal.WithLabelValues("vendor_not_found").Inc()
			return nil, &NotFoundError{Resource: "vendor", ID: vendorID}
		}
		if !vendor.Active {
			util.CartSplitsFailedTotal.WithLabelValues("vendor_inactive").Inc()
			return nil, &InvalidStateError{Msg: fmt.Sprintf("vendor %s is not active", vendorID)}
		}

		items := groups[vendorID]
		var subtotal int64
		for _, item := range items {
			subtotal += item.UnitPrice * int64(item.Quantity)
		}

		split := cs.engine.CalculateForVendor(vendor, subtotal)

		drafts = append(drafts, VendorDraft{
			Vendor:           vendor,
			Items:            items,
			Subtotal:         subtotal,
			CommissionRate:   split.Rate,
			CommissionAmount: split.CommissionAmount,
			NetAmount:        split.NetAmount,
		})
	}

	util.CartSplitsTotal.Inc()
	cs.logger.Info("Cart split",
		zap.String("order_id", order.OrderID),
		zap.Int("vendors", len(drafts)),
		zap.Int("items", len(order.Items)))

	return drafts, nil
}
