package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-core/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetVendor retrieves a vendor by ID
func (s *Store) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	var vendor models.Vendor
	err := s.db.GetContext(ctx, &vendor, "SELECT * FROM vendors WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// ListActiveVendors retrieves active vendors, optionally filtered to the
// given IDs. An empty filter returns all active vendors.
func (s *Store) ListActiveVendors(ctx context.Context, ids []string) ([]models.Vendor, error) {
	if len(ids) == 0 {
		var vendors []models.Vendor
		err := s.db.SelectContext(ctx, &vendors,
			"SELECT * FROM vendors WHERE active = true ORDER BY id")
		return vendors, err
	}

	query, args, err := sqlx.In("SELECT * FROM vendors WHERE active = true AND id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var vendors []models.Vendor
	err = s.db.SelectContext(ctx, &vendors, query, args...)
	return vendors, err
}

// IncrementVendorTotals adds to a vendor's running revenue and commission
// totals with a single atomic UPDATE, so concurrent order placements never
// lose an increment.
func (s *Store) IncrementVendorTotals(ctx context.Context, vendorID string, revenue, commission int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vendors
		 SET total_revenue = total_revenue + $1,
		     total_commission = total_commission + $2,
		     updated_at = NOW()
		 WHERE id = $3`,
		revenue, commission, vendorID)
	return err
}

// UpdateVendorTier updates a shop vendor's commission tier and rate.
// Prospective only: already-recorded commissions keep their rate.
func (s *Store) UpdateVendorTier(ctx context.Context, vendorID, tier string, rate float64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE vendors SET commission_tier = $1, commission_rate = $2, updated_at = NOW() WHERE id = $3",
		tier, rate, vendorID)
	return err
}

// UpdateVendorPaymentAccount updates a vendor's payment account reference and
// onboarding state. Driven by account.updated webhook events.
func (s *Store) UpdateVendorPaymentAccount(ctx context.Context, vendorID, accountRef string, ok bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE vendors SET payment_account_ref = $1, payment_account_ok = $2, updated_at = NOW() WHERE id = $3",
		accountRef, ok, vendorID)
	return err
}

// GetVendorByAccountRef retrieves the vendor owning a payment account
func (s *Store) GetVendorByAccountRef(ctx context.Context, accountRef string) (*models.Vendor, error) {
	var vendor models.Vendor
	err := s.db.GetContext(ctx, &vendor,
		"SELECT * FROM vendors WHERE payment_account_ref = $1", accountRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// UpsertMonthlyVolume adds an order's total to the vendor's volume row for
// the given month, creating the row on first order of the month.
func (s *Store) UpsertMonthlyVolume(ctx context.Context, vendorID string, month, year int, sales int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendor_monthly_volumes (vendor_id, month, year, total_sales, order_count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (vendor_id, month, year)
		 DO UPDATE SET total_sales = vendor_monthly_volumes.total_sales + $4,
		               order_count = vendor_monthly_volumes.order_count + 1`,
		vendorID, month, year, sales)
	return err
}

// GetMonthlyVolumes retrieves the vendor's volume rows for the given
// (month, year) pairs. Months with no sales simply have no row.
func (s *Store) GetMonthlyVolumes(ctx context.Context, vendorID string, months []models.VendorMonthlyVolume) ([]models.VendorMonthlyVolume, error) {
	if len(months) == 0 {
		return nil, nil
	}

	query := `SELECT * FROM vendor_monthly_volumes WHERE vendor_id = $1 AND (month, year) IN (`
	args := []interface{}{vendorID}
	for i, m := range months {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, m.Month, m.Year)
	}
	query += ")"

	var volumes []models.VendorMonthlyVolume
	err := s.db.SelectContext(ctx, &volumes, query, args...)
	return volumes, err
}

// IsEventProcessed checks if a gateway webhook event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a gateway webhook event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
