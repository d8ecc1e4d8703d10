package models

import "time"

// PaymentRow maps to the `payment_records` table.
type PaymentRow struct {
	PaymentID  string    `gorm:"column:payment_id;primaryKey;size:128" json:"payment_id"`
	UserID     int64     `gorm:"column:user_id;index" json:"user_id"`
	ChatID     int64     `gorm:"column:chat_id" json:"chat_id"`
	PlanID     int       `gorm:"column:plan_gb" json:"plan_gb"`
	Amount     string    `gorm:"column:amount;size:64" json:"amount"`
	PaymentURL string    `gorm:"column:payment_url;size:1000" json:"payment_url"`
	Status     string    `gorm:"column:status;size:32;index" json:"status"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (PaymentRow) TableName() string {
	return "payment_records"
}

// PaymentEventRow maps to the `payment_status_events` table.
type PaymentEventRow struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PaymentID  string    `gorm:"column:payment_id;size:128;index" json:"payment_id"`
	FromStatus string    `gorm:"column:from_status;size:32" json:"from_status"`
	ToStatus   string    `gorm:"column:to_status;size:32" json:"to_status"`
	Reason     string    `gorm:"column:reason;size:255" json:"reason"`
	At         time.Time `gorm:"column:at" json:"at"`
}

func (PaymentEventRow) TableName() string {
	return "payment_status_events"
}
