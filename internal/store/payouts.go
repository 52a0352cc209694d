package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-core/internal/models"
)

// CreatePayoutWithReservation creates the payout, its adjustment rows, and
// reserves the commission records in one transaction. If a concurrent payout
// claimed any record between the caller's read and this write, the row count
// comes up short and the whole transaction rolls back, so a commission can
// belong to at most one payout.
func (s *Store) CreatePayoutWithReservation(ctx context.Context, payout *models.Payout, adjustments []models.PayoutAdjustment, commissionIDs []int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO payouts
			(id, vendor_id, amount, commission_total, adjustment_total, commission_count,
			 status, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		payout.ID, payout.VendorID, payout.Amount, payout.CommissionTotal,
		payout.AdjustmentTotal, payout.CommissionCount, payout.Status,
		payout.PeriodStart, payout.PeriodEnd,
	).Scan(&payout.CreatedAt, &payout.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}

	for i := range adjustments {
		adjustments[i].PayoutID = payout.ID
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO payout_adjustments (payout_id, type, amount, description)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			adjustments[i].PayoutID, adjustments[i].Type, adjustments[i].Amount, adjustments[i].Description,
		).Scan(&adjustments[i].ID, &adjustments[i].CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert payout adjustment: %w", err)
		}
	}

	reserved, err := reserveCommissionsTx(ctx, tx, commissionIDs, payout.ID)
	if err != nil {
		return fmt.Errorf("failed to reserve commissions: %w", err)
	}
	if reserved != int64(len(commissionIDs)) {
		return fmt.Errorf("commission reservation conflict: reserved %d of %d records", reserved, len(commissionIDs))
	}

	return tx.Commit()
}

// GetPayout retrieves a payout by ID
func (s *Store) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	var payout models.Payout
	err := s.db.GetContext(ctx, &payout, "SELECT * FROM payouts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListPayoutsByVendor retrieves a vendor's payouts, newest first
func (s *Store) ListPayoutsByVendor(ctx context.Context, vendorID string, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.db.SelectContext(ctx, &payouts,
		"SELECT * FROM payouts WHERE vendor_id = $1 ORDER BY created_at DESC LIMIT $2",
		vendorID, limit)
	return payouts, err
}

// MarkPayoutProcessing stores the gateway transfer reference and moves the
// payout to PROCESSING. Guarded on PENDING so a payout is submitted once.
func (s *Store) MarkPayoutProcessing(ctx context.Context, payoutID, transferRef string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payouts SET status = $1, transfer_ref = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		models.PayoutStatusProcessing, transferRef, payoutID, models.PayoutStatusPending)
	return err
}

// MarkPayoutFailed records a failed transfer with its reason
func (s *Store) MarkPayoutFailed(ctx context.Context, payoutID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payouts SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3",
		models.PayoutStatusFailed, reason, payoutID)
	return err
}

// UpdatePayoutStatus sets a payout's status. Used by webhook reconciliation.
func (s *Store) UpdatePayoutStatus(ctx context.Context, payoutID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payouts SET status = $1, updated_at = NOW() WHERE id = $2",
		status, payoutID)
	return err
}

// GetPayoutByTransferRef retrieves the payout for a gateway transfer
func (s *Store) GetPayoutByTransferRef(ctx context.Context, transferRef string) (*models.Payout, error) {
	var payout models.Payout
	err := s.db.GetContext(ctx, &payout,
		"SELECT * FROM payouts WHERE transfer_ref = $1", transferRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// GetPayoutAdjustments retrieves a payout's adjustments
func (s *Store) GetPayoutAdjustments(ctx context.Context, payoutID string) ([]models.PayoutAdjustment, error) {
	var adjustments []models.PayoutAdjustment
	err := s.db.SelectContext(ctx, &adjustments,
		"SELECT * FROM payout_adjustments WHERE payout_id = $1 ORDER BY id",
		payoutID)
	return adjustments, err
}
