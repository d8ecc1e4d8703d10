package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaidExact PaymentStatus = "paid_exact"
	PaymentPaidOver  PaymentStatus = "paid_over"
	PaymentPaidUnder PaymentStatus = "paid_under"
	PaymentExpired   PaymentStatus = "expired"
	PaymentTestMode  PaymentStatus = "test_mode"
	PaymentError     PaymentStatus = "error"
)

var knownStatuses = map[PaymentStatus]struct{}{
	PaymentPending:   {},
	PaymentPaidExact: {},
	PaymentPaidOver:  {},
	PaymentPaidUnder: {},
	PaymentExpired:   {},
	PaymentTestMode:  {},
	PaymentError:     {},
}

// ParsePaymentStatus validates a raw status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if _, ok := knownStatuses[st]; !ok {
		return "", fmt.Errorf("unknown payment status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the declared statuses.
func (s PaymentStatus) Valid() bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsTerminal reports whether no further transition may leave s.
func (s PaymentStatus) IsTerminal() bool {
	return s.Valid() && s != PaymentPending
}

// Provisions reports whether reaching s grants the buyer an account.
func (s PaymentStatus) Provisions() bool {
	return s == PaymentPaidExact || s == PaymentPaidOver || s == PaymentTestMode
}

// CanTransition returns whether a record in status from may move to status to.
// Only pending records move, and only into a terminal status.
func CanTransition(from, to PaymentStatus) bool {
	return from == PaymentPending && to.IsTerminal()
}

// IsInitialStatus reports whether a record may be created in status s.
func IsInitialStatus(s PaymentStatus) bool {
	return s == PaymentPending || s == PaymentTestMode
}

// StatusEvent is one entry of a payment's audit trail.
type StatusEvent struct {
	From   PaymentStatus `json:"previous_status"`
	To     PaymentStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"timestamp"`
}

// PaymentRecord is the durable record of one payment attempt.
type PaymentRecord struct {
	PaymentID  string          `json:"payment_id"`
	UserID     int64           `json:"user_id"`
	ChatID     int64           `json:"chat_id"`
	PlanID     int             `json:"plan_gb"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentURL string          `json:"payment_url,omitempty"`
	Status     PaymentStatus   `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Updates    []StatusEvent   `json:"updates"`
}

// PaymentSession tracks a payment whose status is being polled.
type PaymentSession struct {
	PaymentID string
	UserID    int64
	ChatID    int64
	PlanID    int
	StartedAt time.Time
}
