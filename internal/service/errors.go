package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions with no extra payload
var (
	// ErrNoFulfillableLocation is returned when no candidate location can
	// fulfill any of the requested items.
	ErrNoFulfillableLocation = errors.New("no fulfillable location for request")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("validation failed: %s", e.Msg)
}

// NotFoundError reports a missing vendor, payout, location or commission.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidStateError reports an operation attempted against an entity in the
// wrong state (inactive vendor, payout not pending, missing payment account).
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string {
	return e.Msg
}

// NoUnpaidCommissionsError reports a payout attempt for a vendor with no
// collected, unreserved commission records.
type NoUnpaidCommissionsError struct {
	VendorID string
}

func (e *NoUnpaidCommissionsError) Error() string {
	return fmt.Sprintf("no unpaid commissions for vendor %s", e.VendorID)
}

// GatewayError wraps a payment provider failure with its raw reason.
type GatewayError struct {
	Op     string
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
