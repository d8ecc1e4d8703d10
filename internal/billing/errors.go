package billing

import (
	"errors"
	"fmt"
)

var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrInvalidPlan      = errors.New("invalid plan")
	ErrPlanInUse        = errors.New("plan is referenced by a pending payment")
	ErrSessionNotFound  = errors.New("no active payment session")
	ErrReconcilerClosed = errors.New("payment reconciler is closed")
)

// ConfigurationError means the gateway cannot be used until an operator
// fixes its settings. No payment was created.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("payment gateway misconfigured: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError wraps a failed call to the gateway or the VPN backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProvisioningError marks a paid payment whose account could not be created.
type ProvisioningError struct {
	PaymentID string
	Username  string
	Err       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision %s for payment %s: %v", e.Username, e.PaymentID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
