package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrCredentialsMissing is returned before any request when the merchant id
// or API key is empty.
var ErrCredentialsMissing = errors.New("payment credentials not configured")

// RemoteStatus is the gateway's view of a payment, normalized.
type RemoteStatus string

const (
	RemotePending RemoteStatus = "pending"
	RemotePaid    RemoteStatus = "paid"
	RemoteExpired RemoteStatus = "expired"
)

// PaymentResult contains the result of a payment creation.
type PaymentResult struct {
	PaymentID  string          `json:"payment_id"`
	OrderID    string          `json:"order_id"`
	PaymentURL string          `json:"payment_url"`
	Amount     decimal.Decimal `json:"amount"`
}

// StatusResult is one status query. AmountPaid and AmountRequired are nil
// when the gateway omitted them.
type StatusResult struct {
	Status         RemoteStatus
	RawStatus      string
	AmountPaid     *decimal.Decimal
	AmountRequired *decimal.Decimal
}

// Credentials authenticate requests to the gateway.
type Credentials struct {
	MerchantID string
	APIKey     string
}

func (c Credentials) Configured() bool {
	return c.MerchantID != "" && c.APIKey != ""
}

// CredentialsFunc resolves credentials per request so admin changes apply
// without a restart.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// Static returns a CredentialsFunc that always yields c.
func Static(c Credentials) CredentialsFunc {
	return func(context.Context) (Credentials, error) { return c, nil }
}

// Gateway defines the interface for payment gateway implementations.
type Gateway interface {
	// Name returns the gateway identifier.
	Name() string

	// CreatePayment opens a payment for amount USD under orderID.
	CreatePayment(ctx context.Context, amount decimal.Decimal, orderID string, planID int) (*PaymentResult, error)

	// PaymentStatus queries the current state of a payment.
	PaymentStatus(ctx context.Context, paymentID string) (*StatusResult, error)
}
