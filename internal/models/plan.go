package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable traffic/duration bundle. ID is the traffic quota in GB.
type Plan struct {
	ID    int             `json:"id"`
	Price decimal.Decimal `json:"price"`
	Days  int             `json:"days"`
}

// TrafficGB returns the plan's traffic quota.
func (p Plan) TrafficGB() int { return p.ID }

// Validate rejects plans that could never be sold.
func (p Plan) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("plan %d: traffic must be positive", p.ID)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("plan %d: price must be positive, got %s", p.ID, p.Price)
	}
	if p.Days <= 0 {
		return fmt.Errorf("plan %d: days must be positive, got %d", p.ID, p.Days)
	}
	return nil
}
