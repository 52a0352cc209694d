package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-core/internal/models"
	"marketplace-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayoutStore is the persistence the scheduler needs. Implemented by
// store.Store.
type PayoutStore interface {
	FindUnpaidCommissions(ctx context.Context, vendorID string, onOrBefore time.Time) ([]models.CommissionRecord, error)
	CreatePayoutWithReservation(ctx context.Context, payout *models.Payout, adjustments []models.PayoutAdjustment, commissionIDs []int64) error
	GetPayout(ctx context.Context, id string) (*models.Payout, error)
	GetPayoutByTransferRef(ctx context.Context, transferRef string) (*models.Payout, error)
	ListPayoutsByVendor(ctx context.Context, vendorID string, limit int) ([]models.Payout, error)
	GetPayoutAdjustments(ctx context.Context, payoutID string) ([]models.PayoutAdjustment, error)
	GetCommissionsByPayout(ctx context.Context, payoutID string) ([]models.CommissionRecord, error)
	MarkPayoutProcessing(ctx context.Context, payoutID, transferRef string) error
	MarkPayoutFailed(ctx context.Context, payoutID, reason string) error
	UpdatePayoutStatus(ctx context.Context, payoutID, status string) error
	GetVendorByAccountRef(ctx context.Context, accountRef string) (*models.Vendor, error)
	UpdateVendorPaymentAccount(ctx context.Context, vendorID, accountRef string, ok bool) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// CommissionMarker transitions a payout's reserved commissions to PAID.
// Satisfied by the commission engine.
type CommissionMarker interface {
	MarkPaid(ctx context.Context, payoutID string) error
}

// PayoutPublisher publishes payout state transitions
type PayoutPublisher interface {
	PublishPayoutEvent(ctx context.Context, event *models.PayoutEvent) error
}

// WebhookDeduper claims gateway event ids so at-least-once webhook delivery
// mutates payout state at most once. Backed by redis SetNX.
type WebhookDeduper interface {
	ClaimWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// BatchLocker serializes batch payout runs across service instances
type BatchLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// AdjustmentInput is a manual correction supplied at payout creation
type AdjustmentInput struct {
	Type        string `json:"type" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// CreatePayoutOptions are the optional knobs for payout creation
type CreatePayoutOptions struct {
	EndDate     *time.Time        `json:"end_date,omitempty"`
	Adjustments []AdjustmentInput `json:"adjustments,omitempty"`
}

// NextPayoutPreview is a side-effect-free view of the payout that would be
// created right now.
type NextPayoutPreview struct {
	VendorID        string `json:"vendor_id"`
	CommissionCount int    `json:"commission_count"`
	CommissionTotal int64  `json:"commission_total"`
	Amount          int64  `json:"amount"`
}

// BatchPayoutRequest filters a batch payout run. MinAmount zero falls back
// to the scheduler's configured minimum.
type BatchPayoutRequest struct {
	VendorIDs []string   `json:"vendor_ids,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	MinAmount int64      `json:"min_amount,omitempty"`
}

const (
	batchPayoutLockKey = "payout-batch"
	batchPayoutLockTTL = 5 * time.Minute
)

// Batch payout per-vendor outcomes
const (
	BatchOutcomeCreated = "created"
	BatchOutcomeSkipped = "skipped"
	BatchOutcomeFailed  = "failed"
)

// BatchPayoutVendorResult is one vendor's outcome in a batch run
type BatchPayoutVendorResult struct {
	VendorID string `json:"vendor_id"`
	Outcome  string `json:"outcome"`
	PayoutID string `json:"payout_id,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// BatchPayoutResult summarizes a batch payout run
type BatchPayoutResult struct {
	Total   int                       `json:"total"`
	Created int                       `json:"created"`
	Skipped int                       `json:"skipped"`
	Failed  int                       `json:"failed"`
	Results []BatchPayoutVendorResult `json:"results"`
}

// PayoutDetail is a payout plus its adjustments and the commission records
// it covers.
type PayoutDetail struct {
	Payout      *models.Payout            `json:"payout"`
	Adjustments []models.PayoutAdjustment `json:"adjustments"`
	Commissions []models.CommissionRecord `json:"commissions"`
}

// PaymentAccountSetup is the result of provisioning a vendor's gateway account
type PaymentAccountSetup struct {
	VendorID   string `json:"vendor_id"`
	AccountRef string `json:"account_ref"`
	LoginLink  string `json:"login_link"`
}

// PayoutScheduler aggregates collected commissions into payouts, submits
// them through the payment gateway and reconciles webhook results.
type PayoutScheduler struct {
	store           PayoutStore
	vendors         VendorDirectory
	commissions     CommissionMarker
	gateway         PaymentGateway
	publisher       PayoutPublisher
	deduper         WebhookDeduper
	locker          BatchLocker
	logger          *zap.Logger
	currency        string
	minBatchAmount  int64
	transferTimeout time.Duration
	now             func() time.Time
}

// NewPayoutScheduler creates a new payout scheduler
func NewPayoutScheduler(
	store PayoutStore,
	vendors VendorDirectory,
	commissions CommissionMarker,
	gateway PaymentGateway,
	publisher PayoutPublisher,
	deduper WebhookDeduper,
	locker BatchLocker,
	currency string,
	minBatchAmount int64,
	transferTimeout time.Duration,
) *PayoutScheduler {
	if currency == "" {
		currency = "usd"
	}
	if transferTimeout <= 0 {
		transferTimeout = 30 * time.Second
	}
	return &PayoutScheduler{
		store:           store,
		vendors:         vendors,
		commissions:     commissions,
		gateway:         gateway,
		publisher:       publisher,
		deduper:         deduper,
		locker:          locker,
		logger:          util.GetLogger(),
		currency:        currency,
		minBatchAmount:  minBatchAmount,
		transferTimeout: transferTimeout,
		now:             time.Now,
	}
}

// CreatePayout gathers the vendor's collected, unreserved commissions up to
// the end date and creates a PENDING payout, reserving the records in the
// same transaction so no commission can enter two payouts.
func (ps *PayoutScheduler) CreatePayout(ctx context.Context, vendorID string, opts CreatePayoutOptions) (*models.Payout, error) {
	ctx, span := util.StartSpan(ctx, "PayoutScheduler.CreatePayout")
	defer span.End()

	vendor, err := ps.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return nil, &NotFoundError{Resource: "vendor", ID: vendorID}
	}
	if vendor.PaymentAccountRef == "" || !vendor.PaymentAccountOK {
		return nil, &InvalidStateError{Msg: fmt.Sprintf("vendor %s has no active payment account", vendorID)}
	}

	endDate := ps.now()
	if opts.EndDate != nil {
		endDate = *opts.EndDate
	}

	recs, err := ps.store.FindUnpaidCommissions(ctx, vendorID, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpaid commissions: %w", err)
	}
	if len(recs) == 0 {
		return nil, &NoUnpaidCommissionsError{VendorID: vendorID}
	}

	var commissionTotal int64
	periodStart := recs[0].CreatedAt
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		commissionTotal += rec.NetAmount
		ids[i] = rec.ID
		if rec.CreatedAt.Before(periodStart) {
			periodStart = rec.CreatedAt
		}
	}

	var adjustmentTotal int64
	adjustments := make([]models.PayoutAdjustment, 0, len(opts.Adjustments))
	for _, adj := range opts.Adjustments {
		switch adj.Type {
		case models.AdjustmentTypeFee, models.AdjustmentTypeBonus, models.AdjustmentTypeClawback:
		default:
			return nil, &ValidationError{Field: "adjustments.type", Msg: fmt.Sprintf("unknown adjustment type %q", adj.Type)}
		}
		adjustmentTotal += adj.Amount
		adjustments = append(adjustments, models.PayoutAdjustment{
			Type:        adj.Type,
			Amount:      adj.Amount,
			Description: adj.Description,
		})
	}

	amount := commissionTotal + adjustmentTotal
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Msg: "payout amount must be positive after adjustments"}
	}

	payout := &models.Payout{
		ID:              uuid.New().String(),
		VendorID:        vendorID,
		Amount:          amount,
		CommissionTotal: commissionTotal,
		AdjustmentTotal: adjustmentTotal,
		CommissionCount: len(recs),
		Status:          models.PayoutStatusPending,
		PeriodStart:     periodStart,
		PeriodEnd:       endDate,
	}

	if err := ps.store.CreatePayoutWithReservation(ctx, payout, adjustments, ids); err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	util.PayoutsCreatedTotal.Inc()

	ps.logger.Info("Payout created",
		zap.String("payout_id", payout.ID),
		zap.String("vendor_id", vendorID),
		zap.Int64("amount", amount),
		zap.Int("commissions", len(recs)))

	ps.publishPayoutEvent(ctx, payout, models.EventTypePayoutCreated, "")

	return payout, nil
}

// ProcessPayout submits a PENDING payout to the payment gateway. On success
// the payout moves to PROCESSING and its commissions to PAID; on failure it
// is marked FAILED and left for manual reprocessing. There is no automatic
// retry.
func (ps *PayoutScheduler) ProcessPayout(ctx context.Context, payoutID string) (*models.Payout, error) {
	ctx, span := util.StartSpan(ctx, "PayoutScheduler.ProcessPayout")
	defer span.End()

	payout, err := ps.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout: %w", err)
	}
	if payout == nil {
		return nil, &NotFoundError{Resource: "payout", ID: payoutID}
	}
	if payout.Status != models.PayoutStatusPending {
		return nil, &InvalidStateError{Msg: fmt.Sprintf("payout %s is %s, not %s", payoutID, payout.Status, models.PayoutStatusPending)}
	}

	vendor, err := ps.vendors.GetVendor(ctx, payout.VendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor %s: %w", payout.VendorID, err)
	}
	if vendor == nil {
		return nil, &NotFoundError{Resource: "vendor", ID: payout.VendorID}
	}

	transferCtx, cancel := context.WithTimeout(ctx, ps.transferTimeout)
	defer cancel()

	start := time.Now()
	transferRef, err := ps.gateway.Transfer(transferCtx, vendor.PaymentAccountRef, payout.Amount, ps.currency, map[string]string{
		"payout_id": payout.ID,
		"vendor_id": payout.VendorID,
	})
	util.GatewayTransferLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		reason := err.Error()
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.Reason != "" {
			reason = gwErr.Reason
		}

		if markErr := ps.store.MarkPayoutFailed(ctx, payout.ID, reason); markErr != nil {
			ps.logger.Error("Failed to mark payout failed",
				zap.String("payout_id", payout.ID),
				zap.Error(markErr))
		}
		util.PayoutsFailedTotal.WithLabelValues("transfer_failed").Inc()

		payout.Status = models.PayoutStatusFailed
		payout.FailureReason = reason
		ps.publishPayoutEvent(ctx, payout, models.EventTypePayoutFailed, reason)

		ps.logger.Warn("Payout transfer failed",
			zap.String("payout_id", payout.ID),
			zap.String("reason", reason))

		return nil, &GatewayError{Op: "transfer", Reason: reason, Err: err}
	}

	if err := ps.store.MarkPayoutProcessing(ctx, payout.ID, transferRef); err != nil {
		return nil, fmt.Errorf("failed to mark payout processing: %w", err)
	}
	if err := ps.commissions.MarkPaid(ctx, payout.ID); err != nil {
		return nil, fmt.Errorf("failed to mark commissions paid: %w", err)
	}

	payout.Status = models.PayoutStatusProcessing
	payout.TransferRef = transferRef

	util.PayoutsProcessedTotal.Inc()
	util.PayoutAmountCentsTotal.Add(float64(payout.Amount))

	ps.logger.Info("Payout submitted",
		zap.String("payout_id", payout.ID),
		zap.String("transfer_ref", transferRef),
		zap.Int64("amount", payout.Amount))

	ps.publishPayoutEvent(ctx, payout, models.EventTypePayoutProcessing, "")

	return payout, nil
}

// CalculateNextPayout previews the payout that would be created now.
// Read-only: repeated calls return identical totals and create nothing.
func (ps *PayoutScheduler) CalculateNextPayout(ctx context.Context, vendorID string) (*NextPayoutPreview, error) {
	vendor, err := ps.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return nil, &NotFoundError{Resource: "vendor", ID: vendorID}
	}

	recs, err := ps.store.FindUnpaidCommissions(ctx, vendorID, ps.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find unpaid commissions: %w", err)
	}

	var total int64
	for _, rec := range recs {
		total += rec.NetAmount
	}

	return &NextPayoutPreview{
		VendorID:        vendorID,
		CommissionCount: len(recs),
		CommissionTotal: total,
		Amount:          total,
	}, nil
}

// CreateBatchPayouts runs payout creation for many vendors sequentially.
// One vendor's failure never aborts the batch; each outcome is reported
// individually.
func (ps *PayoutScheduler) CreateBatchPayouts(ctx context.Context, req BatchPayoutRequest) (*BatchPayoutResult, error) {
	ctx, span := util.StartSpan(ctx, "PayoutScheduler.CreateBatchPayouts")
	defer span.End()

	if ps.locker != nil {
		acquired, err := ps.locker.AcquireLock(ctx, batchPayoutLockKey, batchPayoutLockTTL)
		if err != nil {
			ps.logger.Warn("Batch lock unavailable, proceeding without it", zap.Error(err))
		} else if !acquired {
			return nil, &InvalidStateError{Msg: "another batch payout run is in progress"}
		} else {
			defer func() {
				if err := ps.locker.ReleaseLock(context.Background(), batchPayoutLockKey); err != nil {
					ps.logger.Error("Failed to release batch lock", zap.Error(err))
				}
			}()
		}
	}

	vendors, err := ps.vendors.ListActiveVendors(ctx, req.VendorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}

	result := &BatchPayoutResult{
		Total:   len(vendors),
		Results: make([]BatchPayoutVendorResult, 0, len(vendors)),
	}

	for _, vendor := range vendors {
		outcome := ps.batchOne(ctx, &vendor, req)
		result.Results = append(result.Results, outcome)

		switch outcome.Outcome {
		case BatchOutcomeCreated:
			result.Created++
		case BatchOutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		util.BatchPayoutVendorsTotal.WithLabelValues(outcome.Outcome).Inc()
	}

	ps.logger.Info("Batch payouts finished",
		zap.Int("total", result.Total),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))

	return result, nil
}

// batchOne handles a single vendor in a batch run, swallowing its errors
// into the per-vendor result.
func (ps *PayoutScheduler) batchOne(ctx context.Context, vendor *models.Vendor, req BatchPayoutRequest) BatchPayoutVendorResult {
	if vendor.PaymentAccountRef == "" || !vendor.PaymentAccountOK {
		return BatchPayoutVendorResult{
			VendorID: vendor.ID,
			Outcome:  BatchOutcomeSkipped,
			Reason:   "no_payment_account",
		}
	}

	preview, err := ps.CalculateNextPayout(ctx, vendor.ID)
	if err != nil {
		return BatchPayoutVendorResult{
			VendorID: vendor.ID,
			Outcome:  BatchOutcomeFailed,
			Reason:   err.Error(),
		}
	}
	if preview.CommissionCount == 0 {
		return BatchPayoutVendorResult{
			VendorID: vendor.ID,
			Outcome:  BatchOutcomeSkipped,
			Reason:   "no_unpaid_commissions",
		}
	}
	minAmount := req.MinAmount
	if minAmount == 0 {
		minAmount = ps.minBatchAmount
	}
	if minAmount > 0 && preview.Amount < minAmount {
		return BatchPayoutVendorResult{
			VendorID: vendor.ID,
			Outcome:  BatchOutcomeSkipped,
			Reason:   "below_minimum",
		}
	}

	payout, err := ps.CreatePayout(ctx, vendor.ID, CreatePayoutOptions{EndDate: req.EndDate})
	if err != nil {
		ps.logger.Warn("Batch payout failed for vendor",
			zap.String("vendor_id", vendor.ID),
			zap.Error(err))
		return BatchPayoutVendorResult{
			VendorID: vendor.ID,
			Outcome:  BatchOutcomeFailed,
			Reason:   err.Error(),
		}
	}

	return BatchPayoutVendorResult{
		VendorID: vendor.ID,
		Outcome:  BatchOutcomeCreated,
		PayoutID: payout.ID,
		Amount:   payout.Amount,
	}
}

// GetPayoutDetail retrieves a payout with its adjustments
func (ps *PayoutScheduler) GetPayoutDetail(ctx context.Context, payoutID string) (*PayoutDetail, error) {
	payout, err := ps.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout: %w", err)
	}
	if payout == nil {
		return nil, &NotFoundError{Resource: "payout", ID: payoutID}
	}

	adjustments, err := ps.store.GetPayoutAdjustments(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to load adjustments: %w", err)
	}

	commissions, err := ps.store.GetCommissionsByPayout(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commission records: %w", err)
	}

	return &PayoutDetail{Payout: payout, Adjustments: adjustments, Commissions: commissions}, nil
}

// SetupPaymentAccount provisions a gateway account for a vendor and returns
// an onboarding login link. The account stays disabled for payouts until the
// gateway confirms it via an account.updated webhook.
func (ps *PayoutScheduler) SetupPaymentAccount(ctx context.Context, vendorID string) (*PaymentAccountSetup, error) {
	vendor, err := ps.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return nil, &NotFoundError{Resource: "vendor", ID: vendorID}
	}

	accountRef := vendor.PaymentAccountRef
	if accountRef == "" {
		accountRef, err = ps.gateway.CreateAccount(ctx, vendor)
		if err != nil {
			return nil, &GatewayError{Op: "create_account", Err: err}
		}
		if err := ps.store.UpdateVendorPaymentAccount(ctx, vendorID, accountRef, false); err != nil {
			return nil, fmt.Errorf("failed to store payment account ref: %w", err)
		}

		ps.logger.Info("Payment account provisioned",
			zap.String("vendor_id", vendorID),
			zap.String("account_ref", accountRef))
	}

	link, err := ps.gateway.LoginLink(ctx, accountRef)
	if err != nil {
		return nil, &GatewayError{Op: "login_link", Err: err}
	}

	return &PaymentAccountSetup{
		VendorID:   vendorID,
		AccountRef: accountRef,
		LoginLink:  link,
	}, nil
}

// AccountBalance reads a vendor's balance from the payment gateway
func (ps *PayoutScheduler) AccountBalance(ctx context.Context, vendorID string) (int64, error) {
	vendor, err := ps.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return 0, fmt.Errorf("failed to load vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return 0, &NotFoundError{Resource: "vendor", ID: vendorID}
	}
	if vendor.PaymentAccountRef == "" {
		return 0, &InvalidStateError{Msg: fmt.Sprintf("vendor %s has no payment account", vendorID)}
	}

	balance, err := ps.gateway.Balance(ctx, vendor.PaymentAccountRef)
	if err != nil {
		return 0, &GatewayError{Op: "balance", Err: err}
	}
	return balance, nil
}

// ListPayouts retrieves a vendor's payouts, newest first
func (ps *PayoutScheduler) ListPayouts(ctx context.Context, vendorID string, limit int) ([]models.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return ps.store.ListPayoutsByVendor(ctx, vendorID, limit)
}

// HandleTransferWebhook reconciles a gateway webhook event with payout
// state. Delivery is at-least-once; events are deduplicated by provider
// event id before any mutation.
func (ps *PayoutScheduler) HandleTransferWebhook(ctx context.Context, event *models.GatewayWebhookEvent) error {
	ctx, span := util.StartSpan(ctx, "PayoutScheduler.HandleTransferWebhook")
	defer span.End()

	if event.EventID == "" {
		return &ValidationError{Field: "event_id", Msg: "required"}
	}

	if ps.deduper != nil {
		claimed, err := ps.deduper.ClaimWebhookEvent(ctx, event.EventID, 24*time.Hour)
		if err != nil {
			ps.logger.Warn("Webhook dedup check failed, falling back to store",
				zap.Error(err))
		} else if !claimed {
			util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	processed, err := ps.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	switch event.EventType {
	case models.GatewayEventAccountUpdated:
		err = ps.handleAccountUpdated(ctx, event)
	case models.GatewayEventPayoutPaid:
		err = ps.settlePayout(ctx, event, models.PayoutStatusPaid, models.EventTypePayoutPaid)
	case models.GatewayEventPayoutFailed:
		err = ps.failPayout(ctx, event)
	case models.GatewayEventTransferReversed:
		err = ps.settlePayout(ctx, event, models.PayoutStatusReversed, models.EventTypePayoutReversed)
	default:
		ps.logger.Info("Ignoring unhandled gateway event",
			zap.String("event_type", event.EventType),
			zap.String("event_id", event.EventID))
	}
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("error").Inc()
		return err
	}

	if err := ps.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	util.WebhookEventsTotal.WithLabelValues("processed").Inc()
	return nil
}

func (ps *PayoutScheduler) handleAccountUpdated(ctx context.Context, event *models.GatewayWebhookEvent) error {
	vendor, err := ps.store.GetVendorByAccountRef(ctx, event.AccountRef)
	if err != nil {
		return fmt.Errorf("failed to find vendor for account %s: %w", event.AccountRef, err)
	}
	if vendor == nil {
		ps.logger.Warn("account.updated for unknown account",
			zap.String("account_ref", event.AccountRef))
		return nil
	}

	if err := ps.store.UpdateVendorPaymentAccount(ctx, vendor.ID, event.AccountRef, event.PayoutsEnabled); err != nil {
		return fmt.Errorf("failed to update vendor payment account: %w", err)
	}

	ps.logger.Info("Vendor payment account updated",
		zap.String("vendor_id", vendor.ID),
		zap.Bool("payouts_enabled", event.PayoutsEnabled))

	return nil
}

// findPayoutForEvent resolves the payout an event refers to, by embedded
// payout id first, then by transfer reference.
func (ps *PayoutScheduler) findPayoutForEvent(ctx context.Context, event *models.GatewayWebhookEvent) (*models.Payout, error) {
	if event.PayoutID != "" {
		return ps.store.GetPayout(ctx, event.PayoutID)
	}
	if event.TransferRef != "" {
		return ps.store.GetPayoutByTransferRef(ctx, event.TransferRef)
	}
	return nil, nil
}

func (ps *PayoutScheduler) settlePayout(ctx context.Context, event *models.GatewayWebhookEvent, status, eventType string) error {
	payout, err := ps.findPayoutForEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to find payout for event %s: %w", event.EventID, err)
	}
	if payout == nil {
		ps.logger.Warn("Gateway event for unknown payout",
			zap.String("event_id", event.EventID),
			zap.String("transfer_ref", event.TransferRef))
		return nil
	}

	if err := ps.store.UpdatePayoutStatus(ctx, payout.ID, status); err != nil {
		return fmt.Errorf("failed to update payout status: %w", err)
	}

	payout.Status = status
	ps.publishPayoutEvent(ctx, payout, eventType, event.Reason)

	ps.logger.Info("Payout settled",
		zap.String("payout_id", payout.ID),
		zap.String("status", status))

	return nil
}

func (ps *PayoutScheduler) failPayout(ctx context.Context, event *models.GatewayWebhookEvent) error {
	payout, err := ps.findPayoutForEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to find payout for event %s: %w", event.EventID, err)
	}
	if payout == nil {
		ps.logger.Warn("payout.failed for unknown payout",
			zap.String("event_id", event.EventID))
		return nil
	}

	if err := ps.store.MarkPayoutFailed(ctx, payout.ID, event.Reason); err != nil {
		return fmt.Errorf("failed to mark payout failed: %w", err)
	}
	util.PayoutsFailedTotal.WithLabelValues("gateway_webhook").Inc()

	payout.Status = models.PayoutStatusFailed
	payout.FailureReason = event.Reason
	ps.publishPayoutEvent(ctx, payout, models.EventTypePayoutFailed, event.Reason)

	return nil
}

func (ps *PayoutScheduler) publishPayoutEvent(ctx context.Context, payout *models.Payout, eventType, reason string) {
	if ps.publisher == nil {
		return
	}

	event := &models.PayoutEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: ps.now(),
		},
		PayoutID:    payout.ID,
		VendorID:    payout.VendorID,
		Amount:      payout.Amount,
		Status:      payout.Status,
		TransferRef: payout.TransferRef,
		Reason:      reason,
	}

	if err := ps.publisher.PublishPayoutEvent(ctx, event); err != nil {
		ps.logger.Error("Failed to publish payout event",
			zap.String("payout_id", payout.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
