package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"vpnshop/internal/models"
)

// Ledger is the durable payment record store.
type Ledger interface {
	Record(ctx context.Context, rec *models.PaymentRecord) error
	Update(ctx context.Context, paymentID string, status models.PaymentStatus, reason string) error
	FindByID(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
	FindByStatus(ctx context.Context, status models.PaymentStatus) ([]models.PaymentRecord, error)
}

// PlanStore persists the plan catalog.
type PlanStore interface {
	FindAll(ctx context.Context) ([]models.Plan, error)
	Save(ctx context.Context, plan models.Plan) error
	Delete(ctx context.Context, id int) error
}

// TestModeSource reports whether payments bypass the gateway.
type TestModeSource interface {
	TestMode(ctx context.Context) (bool, error)
}

// Account is a provisioned VPN account as shown to the buyer.
type Account struct {
	Username  string
	TrafficGB int
	Days      int
	URI       string
	Output    string
}

// Notifier delivers payment outcomes to the buyer's chat.
type Notifier interface {
	AccountReady(ctx context.Context, chatID int64, account *Account)
	PaymentOverpaid(ctx context.Context, chatID int64, paid, required decimal.Decimal)
	PaymentUnderpaid(ctx context.Context, chatID int64, paid, required decimal.Decimal)
	PaymentExpired(ctx context.Context, chatID int64, paymentID string)
	PaymentFailed(ctx context.Context, chatID int64, paymentID string, err error)
	ProvisioningFailed(ctx context.Context, chatID int64, paymentID string, err error)
}

type nopNotifier struct{}

func (nopNotifier) AccountReady(context.Context, int64, *Account)                             {}
func (nopNotifier) PaymentOverpaid(context.Context, int64, decimal.Decimal, decimal.Decimal)  {}
func (nopNotifier) PaymentUnderpaid(context.Context, int64, decimal.Decimal, decimal.Decimal) {}
func (nopNotifier) PaymentExpired(context.Context, int64, string)                             {}
func (nopNotifier) PaymentFailed(context.Context, int64, string, error)                       {}
func (nopNotifier) ProvisioningFailed(context.Context, int64, string, error)                  {}
