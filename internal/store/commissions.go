package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateCommission persists a new commission record in PENDING status
func (s *Store) CreateCommission(ctx context.Context, rec *models.CommissionRecord) error {
	query := `
		INSERT INTO commission_records
			(vendor_id, order_id, order_total, commission_rate, commission_amount, net_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, rec, query,
		rec.VendorID, rec.OrderID, rec.OrderTotal, rec.CommissionRate,
		rec.CommissionAmount, rec.NetAmount, rec.Status)
}

// GetCommissionByOrderID retrieves the commission record for an order
func (s *Store) GetCommissionByOrderID(ctx context.Context, orderID string) (*models.CommissionRecord, error) {
	var rec models.CommissionRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM commission_records WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkCommissionCollected transitions a PENDING record to COLLECTED.
// Returns false if no pending record exists for the order.
func (s *Store) MarkCommissionCollected(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE commission_records SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status = $3",
		models.CommissionStatusCollected, orderID, models.CommissionStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// FindUnpaidCommissions retrieves a vendor's COLLECTED records that have not
// been reserved by any payout, created on or before the cutoff.
func (s *Store) FindUnpaidCommissions(ctx context.Context, vendorID string, onOrBefore time.Time) ([]models.CommissionRecord, error) {
	var recs []models.CommissionRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT * FROM commission_records
		 WHERE vendor_id = $1 AND status = $2 AND payout_id IS NULL AND created_at <= $3
		 ORDER BY created_at`,
		vendorID, models.CommissionStatusCollected, onOrBefore)
	return recs, err
}

// reserveCommissionsTx stamps payout_id on the given records and moves them
// to PROCESSING inside an existing transaction. The payout_id IS NULL guard
// makes the reservation conditional: a record already claimed by a concurrent
// payout is not re-claimed, and the caller detects the race by row count.
func reserveCommissionsTx(ctx context.Context, tx *sqlx.Tx, ids []int64, payoutID string) (int64, error) {
	query, args, err := sqlx.In(
		`UPDATE commission_records
		 SET payout_id = ?, status = ?, updated_at = NOW()
		 WHERE id IN (?) AND payout_id IS NULL AND status = ?`,
		payoutID, models.CommissionStatusProcessing, ids, models.CommissionStatusCollected)
	if err != nil {
		return 0, err
	}
	query = tx.Rebind(query)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkCommissionsPaid bulk-transitions a payout's reserved records to PAID
func (s *Store) MarkCommissionsPaid(ctx context.Context, payoutID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE commission_records SET status = $1, updated_at = NOW() WHERE payout_id = $2",
		models.CommissionStatusPaid, payoutID)
	return err
}

// GetCommissionsByVendor retrieves a vendor's commission records in a date
// range, newest first.
func (s *Store) GetCommissionsByVendor(ctx context.Context, vendorID string, from, to time.Time) ([]models.CommissionRecord, error) {
	var recs []models.CommissionRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT * FROM commission_records
		 WHERE vendor_id = $1 AND created_at >= $2 AND created_at <= $3
		 ORDER BY created_at DESC`,
		vendorID, from, to)
	return recs, err
}

// GetCommissionsByPayout retrieves the records reserved by a payout
func (s *Store) GetCommissionsByPayout(ctx context.Context, payoutID string) ([]models.CommissionRecord, error) {
	var recs []models.CommissionRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM commission_records WHERE payout_id = $1 ORDER BY created_at",
		payoutID)
	return recs, err
}

// CommissionStatusTotal is one row of the commission analytics report.
type CommissionStatusTotal struct {
	Status          string `db:"status" json:"status"`
	RecordCount     int    `db:"record_count" json:"record_count"`
	OrderTotal      int64  `db:"order_total" json:"order_total"`
	CommissionTotal int64  `db:"commission_total" json:"commission_total"`
	NetTotal        int64  `db:"net_total" json:"net_total"`
}

// GetCommissionReport aggregates commission records by status over a range
func (s *Store) GetCommissionReport(ctx context.Context, from, to time.Time) ([]CommissionStatusTotal, error) {
	var rows []CommissionStatusTotal
	err := s.db.SelectContext(ctx, &rows,
		`SELECT status,
		        COUNT(*) AS record_count,
		        COALESCE(SUM(order_total), 0) AS order_total,
		        COALESCE(SUM(commission_amount), 0) AS commission_total,
		        COALESCE(SUM(net_amount), 0) AS net_total
		 FROM commission_records
		 WHERE created_at >= $1 AND created_at <= $2
		 GROUP BY status
		 ORDER BY status`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate commission report: %w", err)
	}
	return rows, nil
}
