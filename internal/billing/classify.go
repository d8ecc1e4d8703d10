package billing

import (
	"github.com/shopspring/decimal"

	"vpnshop/internal/models"
)

// Classify maps a settled payment to its terminal status by exact decimal
// comparison of the paid and required amounts.
func Classify(paid, required decimal.Decimal) models.PaymentStatus {
	switch paid.Cmp(required) {
	case -1:
		return models.PaymentPaidUnder
	case 1:
		return models.PaymentPaidOver
	default:
		return models.PaymentPaidExact
	}
}
