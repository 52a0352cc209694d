package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"marketplace-core/internal/models"

	"github.com/google/uuid"
)

// PaymentGateway abstracts the external payment provider: account lifecycle,
// fund transfers, balance queries. Webhook events arrive separately through
// the payment-events topic or the HTTP webhook endpoint.
type PaymentGateway interface {
	CreateAccount(ctx context.Context, vendor *models.Vendor) (accountRef string, err error)
	Transfer(ctx context.Context, accountRef string, amountCents int64, currency string, metadata map[string]string) (transferRef string, err error)
	Balance(ctx context.Context, accountRef string) (int64, error)
	LoginLink(ctx context.Context, accountRef string) (string, error)
}

// MockGateway is an in-process gateway for development and tests, with a
// configurable failure rate like a flaky provider.
type MockGateway struct {
	successRate float64

	mu        sync.Mutex
	balances  map[string]int64
	transfers map[string]int64
}

// NewMockGateway creates a mock gateway. successRate 1.0 never fails.
func NewMockGateway(successRate float64) *MockGateway {
	return &MockGateway{
		successRate: successRate,
		balances:    make(map[string]int64),
		transfers:   make(map[string]int64),
	}
}

// CreateAccount provisions a new mock payment account
func (g *MockGateway) CreateAccount(ctx context.Context, vendor *models.Vendor) (string, error) {
	accountRef := fmt.Sprintf("acct_%s", uuid.New().String()[:12])

	g.mu.Lock()
	g.balances[accountRef] = 0
	g.mu.Unlock()

	return accountRef, nil
}

// Transfer moves funds to a vendor account, failing per the configured rate
func (g *MockGateway) Transfer(ctx context.Context, accountRef string, amountCents int64, currency string, metadata map[string]string) (string, error) {
	select {
	case <-ctx.Done():
		return "", &GatewayError{Op: "transfer", Reason: "timeout", Err: ctx.Err()}
	case <-time.After(time.Duration(50+rand.Intn(150)) * time.Millisecond):
	}

	if rand.Float64() >= g.successRate {
		return "", &GatewayError{Op: "transfer", Reason: "provider_declined"}
	}

	transferRef := fmt.Sprintf("tr_%s", uuid.New().String()[:12])

	g.mu.Lock()
	g.balances[accountRef] += amountCents
	g.transfers[transferRef] = amountCents
	g.mu.Unlock()

	return transferRef, nil
}

// Balance returns a mock account's balance
func (g *MockGateway) Balance(ctx context.Context, accountRef string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	balance, ok := g.balances[accountRef]
	if !ok {
		return 0, &GatewayError{Op: "balance", Reason: "account_not_found"}
	}
	return balance, nil
}

// LoginLink returns a mock dashboard login link
func (g *MockGateway) LoginLink(ctx context.Context, accountRef string) (string, error) {
	return fmt.Sprintf("https://gateway.example.com/login/%s", accountRef), nil
}
