package cron

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vpnshop/internal/models"
)

// dailyReport summarizes payments created since local midnight.
type dailyReport struct {
	Day          time.Time
	Records      []models.PaymentRecord
	ByStatus     map[models.PaymentStatus]int
	Revenue      decimal.Decimal
	PendingTotal int
}

func buildDailyReport(all []models.PaymentRecord, now time.Time) dailyReport {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	r := dailyReport{
		Day:      day,
		ByStatus: make(map[models.PaymentStatus]int),
		Revenue:  decimal.Zero,
	}
	for _, rec := range all {
		if rec.Status == models.PaymentPending {
			r.PendingTotal++
		}
		if rec.CreatedAt.Before(day) {
			continue
		}
		r.Records = append(r.Records, rec)
		r.ByStatus[rec.Status]++
		if rec.Status == models.PaymentPaidExact || rec.Status == models.PaymentPaidOver {
			r.Revenue = r.Revenue.Add(rec.Amount)
		}
	}
	return r
}

func (r dailyReport) Text() string {
	paid := r.ByStatus[models.PaymentPaidExact] + r.ByStatus[models.PaymentPaidOver]

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Daily payment report</b> %s\n\n", r.Day.Format("2006-01-02"))
	fmt.Fprintf(&sb, "🧾 Created: %d\n", len(r.Records))
	fmt.Fprintf(&sb, "✅ Paid: %d (exact %d, over %d)\n", paid,
		r.ByStatus[models.PaymentPaidExact], r.ByStatus[models.PaymentPaidOver])
	fmt.Fprintf(&sb, "💰 Revenue: $%s\n", r.Revenue.StringFixed(2))
	fmt.Fprintf(&sb, "⚠️ Underpaid: %d\n", r.ByStatus[models.PaymentPaidUnder])
	fmt.Fprintf(&sb, "⌛ Expired: %d\n", r.ByStatus[models.PaymentExpired])
	fmt.Fprintf(&sb, "❌ Errors: %d\n", r.ByStatus[models.PaymentError])
	fmt.Fprintf(&sb, "🧪 Test mode: %d\n", r.ByStatus[models.PaymentTestMode])
	fmt.Fprintf(&sb, "⏳ Pending now: %d", r.PendingTotal)
	return sb.String()
}

// CSV renders the day's records, one row each.
func (r dailyReport) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"payment_id", "user_id", "plan_gb", "amount", "status", "created_at", "updated_at"}); err != nil {
		return nil, err
	}
	for _, rec := range r.Records {
		row := []string{
			rec.PaymentID,
			strconv.FormatInt(rec.UserID, 10),
			strconv.Itoa(rec.PlanID),
			rec.Amount.StringFixed(2),
			string(rec.Status),
			rec.CreatedAt.Format(time.RFC3339),
			rec.UpdatedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
