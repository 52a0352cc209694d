package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-core/internal/models"
	"marketplace-core/internal/store"
)

// fakeVendorDir is an in-memory VendorDirectory
type fakeVendorDir struct {
	vendors map[string]*models.Vendor
}

func newFakeVendorDir(vendors ...*models.Vendor) *fakeVendorDir {
	dir := &fakeVendorDir{vendors: make(map[string]*models.Vendor)}
	for _, v := range vendors {
		dir.vendors[v.ID] = v
	}
	return dir
}

func (d *fakeVendorDir) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	return d.vendors[id], nil
}

func (d *fakeVendorDir) ListActiveVendors(ctx context.Context, ids []string) ([]models.Vendor, error) {
	filter := make(map[string]bool, len(ids))
	for _, id := range ids {
		filter[id] = true
	}

	var out []models.Vendor
	for _, v := range d.vendors {
		if !v.Active {
			continue
		}
		if len(ids) > 0 && !filter[v.ID] {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

// fakeCommissionStore is an in-memory CommissionStore
type fakeCommissionStore struct {
	dir     *fakeVendorDir
	records []*models.CommissionRecord
	volumes map[string]*models.VendorMonthlyVolume
	nextID  int64
}

func newFakeCommissionStore(dir *fakeVendorDir) *fakeCommissionStore {
	return &fakeCommissionStore{
		dir:     dir,
		volumes: make(map[string]*models.VendorMonthlyVolume),
	}
}

func volumeKey(vendorID string, month, year int) string {
	return fmt.Sprintf("%s/%d-%d", vendorID, year, month)
}

func (s *fakeCommissionStore) CreateCommission(ctx context.Context, rec *models.CommissionRecord) error {
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeCommissionStore) GetCommissionByOrderID(ctx context.Context, orderID string) (*models.CommissionRecord, error) {
	for _, rec := range s.records {
		if rec.OrderID == orderID {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *fakeCommissionStore) MarkCommissionCollected(ctx context.Context, orderID string) (bool, error) {
	for _, rec := range s.records {
		if rec.OrderID == orderID && rec.Status == models.CommissionStatusPending {
			rec.Status = models.CommissionStatusCollected
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeCommissionStore) MarkCommissionsPaid(ctx context.Context, payoutID string) error {
	for _, rec := range s.records {
		if rec.PayoutID != nil && *rec.PayoutID == payoutID {
			rec.Status = models.CommissionStatusPaid
		}
	}
	return nil
}

func (s *fakeCommissionStore) GetCommissionsByVendor(ctx context.Context, vendorID string, from, to time.Time) ([]models.CommissionRecord, error) {
	var out []models.CommissionRecord
	for _, rec := range s.records {
		if rec.VendorID == vendorID && !rec.CreatedAt.Before(from) && !rec.CreatedAt.After(to) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *fakeCommissionStore) GetCommissionReport(ctx context.Context, from, to time.Time) ([]store.CommissionStatusTotal, error) {
	byStatus := make(map[string]*store.CommissionStatusTotal)
	for _, rec := range s.records {
		if rec.CreatedAt.Before(from) || rec.CreatedAt.After(to) {
			continue
		}
		row := byStatus[rec.Status]
		if row == nil {
			row = &store.CommissionStatusTotal{Status: rec.Status}
			byStatus[rec.Status] = row
		}
		row.RecordCount++
		row.OrderTotal += rec.OrderTotal
		row.CommissionTotal += rec.CommissionAmount
		row.NetTotal += rec.NetAmount
	}

	var out []store.CommissionStatusTotal
	for _, row := range byStatus {
		out = append(out, *row)
	}
	return out, nil
}

func (s *fakeCommissionStore) IncrementVendorTotals(ctx context.Context, vendorID string, revenue, commission int64) error {
	if v := s.dir.vendors[vendorID]; v != nil {
		v.TotalRevenue += revenue
		v.TotalCommission += commission
	}
	return nil
}

func (s *fakeCommissionStore) UpsertMonthlyVolume(ctx context.Context, vendorID string, month, year int, sales int64) error {
	key := volumeKey(vendorID, month, year)
	vol := s.volumes[key]
	if vol == nil {
		vol = &models.VendorMonthlyVolume{VendorID: vendorID, Month: month, Year: year}
		s.volumes[key] = vol
	}
	vol.TotalSales += sales
	vol.OrderCount++
	return nil
}

func (s *fakeCommissionStore) GetMonthlyVolumes(ctx context.Context, vendorID string, months []models.VendorMonthlyVolume) ([]models.VendorMonthlyVolume, error) {
	var out []models.VendorMonthlyVolume
	for _, m := range months {
		if vol := s.volumes[volumeKey(vendorID, m.Month, m.Year)]; vol != nil {
			out = append(out, *vol)
		}
	}
	return out, nil
}

func (s *fakeCommissionStore) UpdateVendorTier(ctx context.Context, vendorID, tier string, rate float64) error {
	if v := s.dir.vendors[vendorID]; v != nil {
		v.CommissionTier = tier
		v.CommissionRate = rate
	}
	return nil
}

// fakePayoutStore is an in-memory PayoutStore sharing commission records
// with a fakeCommissionStore.
type fakePayoutStore struct {
	commissions *fakeCommissionStore
	dir         *fakeVendorDir
	payouts     map[string]*models.Payout
	adjustments map[string][]models.PayoutAdjustment
	processed   map[string]bool
}

func newFakePayoutStore(commissions *fakeCommissionStore, dir *fakeVendorDir) *fakePayoutStore {
	return &fakePayoutStore{
		commissions: commissions,
		dir:         dir,
		payouts:     make(map[string]*models.Payout),
		adjustments: make(map[string][]models.PayoutAdjustment),
		processed:   make(map[string]bool),
	}
}

func (s *fakePayoutStore) FindUnpaidCommissions(ctx context.Context, vendorID string, onOrBefore time.Time) ([]models.CommissionRecord, error) {
	var out []models.CommissionRecord
	for _, rec := range s.commissions.records {
		if rec.VendorID == vendorID && rec.Status == models.CommissionStatusCollected &&
			rec.PayoutID == nil && !rec.CreatedAt.After(onOrBefore) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *fakePayoutStore) CreatePayoutWithReservation(ctx context.Context, payout *models.Payout, adjustments []models.PayoutAdjustment, commissionIDs []int64) error {
	wanted := make(map[int64]bool, len(commissionIDs))
	for _, id := range commissionIDs {
		wanted[id] = true
	}

	var reserved int
	for _, rec := range s.commissions.records {
		if wanted[rec.ID] && rec.PayoutID == nil && rec.Status == models.CommissionStatusCollected {
			reserved++
		}
	}
	if reserved != len(commissionIDs) {
		return fmt.Errorf("commission reservation conflict: reserved %d of %d records", reserved, len(commissionIDs))
	}

	for _, rec := range s.commissions.records {
		if wanted[rec.ID] {
			id := payout.ID
			rec.PayoutID = &id
			rec.Status = models.CommissionStatusProcessing
		}
	}

	payout.CreatedAt = time.Now()
	payout.UpdatedAt = payout.CreatedAt
	s.payouts[payout.ID] = payout
	s.adjustments[payout.ID] = adjustments
	return nil
}

func (s *fakePayoutStore) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	return s.payouts[id], nil
}

func (s *fakePayoutStore) GetPayoutByTransferRef(ctx context.Context, transferRef string) (*models.Payout, error) {
	for _, p := range s.payouts {
		if p.TransferRef == transferRef {
			return p, nil
		}
	}
	return nil, nil
}

func (s *fakePayoutStore) ListPayoutsByVendor(ctx context.Context, vendorID string, limit int) ([]models.Payout, error) {
	var out []models.Payout
	for _, p := range s.payouts {
		if p.VendorID == vendorID {
			out = append(out, *p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakePayoutStore) GetPayoutAdjustments(ctx context.Context, payoutID string) ([]models.PayoutAdjustment, error) {
	return s.adjustments[payoutID], nil
}

func (s *fakePayoutStore) GetCommissionsByPayout(ctx context.Context, payoutID string) ([]models.CommissionRecord, error) {
	var out []models.CommissionRecord
	for _, rec := range s.commissions.records {
		if rec.PayoutID != nil && *rec.PayoutID == payoutID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *fakePayoutStore) MarkPayoutProcessing(ctx context.Context, payoutID, transferRef string) error {
	if p := s.payouts[payoutID]; p != nil && p.Status == models.PayoutStatusPending {
		p.Status = models.PayoutStatusProcessing
		p.TransferRef = transferRef
	}
	return nil
}

func (s *fakePayoutStore) MarkPayoutFailed(ctx context.Context, payoutID, reason string) error {
	if p := s.payouts[payoutID]; p != nil {
		p.Status = models.PayoutStatusFailed
		p.FailureReason = reason
	}
	return nil
}

func (s *fakePayoutStore) UpdatePayoutStatus(ctx context.Context, payoutID, status string) error {
	if p := s.payouts[payoutID]; p != nil {
		p.Status = status
	}
	return nil
}

func (s *fakePayoutStore) GetVendorByAccountRef(ctx context.Context, accountRef string) (*models.Vendor, error) {
	for _, v := range s.dir.vendors {
		if v.PaymentAccountRef == accountRef {
			return v, nil
		}
	}
	return nil, nil
}

func (s *fakePayoutStore) UpdateVendorPaymentAccount(ctx context.Context, vendorID, accountRef string, ok bool) error {
	if v := s.dir.vendors[vendorID]; v != nil {
		v.PaymentAccountRef = accountRef
		v.PaymentAccountOK = ok
	}
	return nil
}

func (s *fakePayoutStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.processed[eventID], nil
}

func (s *fakePayoutStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.processed[eventID] = true
	return nil
}

// fakeLocationStore is an in-memory LocationStore
type fakeLocationStore struct {
	locations []models.FulfillmentLocation
	rules     []models.RoutingRule
}

func (s *fakeLocationStore) ListActiveLocations(ctx context.Context, country string) ([]models.FulfillmentLocation, error) {
	var out []models.FulfillmentLocation
	for _, loc := range s.locations {
		if loc.Active && loc.Country == country {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (s *fakeLocationStore) GetLocationByCode(ctx context.Context, code string) (*models.FulfillmentLocation, error) {
	for i := range s.locations {
		if s.locations[i].Code == code {
			return &s.locations[i], nil
		}
	}
	return nil, nil
}

func (s *fakeLocationStore) ListActiveRules(ctx context.Context, at time.Time) ([]models.RoutingRule, error) {
	return s.rules, nil
}

// fakeStock reports availability from a static location -> sku -> qty map
type fakeStock struct {
	stock map[string]map[string]int
}

func (s *fakeStock) GetLocationStock(ctx context.Context, locationCode string, skus []string) (map[string]int, error) {
	out := make(map[string]int, len(skus))
	for _, sku := range skus {
		out[sku] = s.stock[locationCode][sku]
	}
	return out, nil
}

// fakeDeduper claims webhook event ids in memory
type fakeDeduper struct {
	claimed map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{claimed: make(map[string]bool)}
}

func (d *fakeDeduper) ClaimWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if d.claimed[eventID] {
		return false, nil
	}
	d.claimed[eventID] = true
	return true, nil
}

// scriptedGateway returns canned transfer results
type scriptedGateway struct {
	transferRef string
	transferErr error
	transfers   int
	balance     int64
	accounts    int
}

func (g *scriptedGateway) CreateAccount(ctx context.Context, vendor *models.Vendor) (string, error) {
	g.accounts++
	return "acct_test", nil
}

func (g *scriptedGateway) Transfer(ctx context.Context, accountRef string, amountCents int64, currency string, metadata map[string]string) (string, error) {
	g.transfers++
	if g.transferErr != nil {
		return "", g.transferErr
	}
	return g.transferRef, nil
}

func (g *scriptedGateway) Balance(ctx context.Context, accountRef string) (int64, error) {
	return g.balance, nil
}

func (g *scriptedGateway) LoginLink(ctx context.Context, accountRef string) (string, error) {
	return "https://gateway.test/login/" + accountRef, nil
}
