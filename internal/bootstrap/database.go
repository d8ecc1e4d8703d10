package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"vpnshop/internal/models"
)

// MigrateLedger ensures the payment ledger tables exist.
func MigrateLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(ledgerModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func ledgerModels() []interface{} {
	return []interface{}{
		&models.PaymentRow{},
		&models.PaymentEventRow{},
	}
}
