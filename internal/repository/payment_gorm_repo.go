package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vpnshop/internal/models"
)

// GormPaymentRepository is the MySQL payment ledger. Status events live in
// their own table so the audit trail stays append-only.
type GormPaymentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db, now: time.Now}
}

// Record inserts a new payment row.
func (r *GormPaymentRepository) Record(ctx context.Context, rec *models.PaymentRecord) error {
	if err := checkInitial(rec); err != nil {
		return err
	}
	now := r.now().UTC()
	row := models.PaymentRow{
		PaymentID:  rec.PaymentID,
		UserID:     rec.UserID,
		ChatID:     rec.ChatID,
		PlanID:     rec.PlanID,
		Amount:     rec.Amount.String(),
		PaymentURL: rec.PaymentURL,
		Status:     string(rec.Status),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicatePayment, rec.PaymentID)
		}
		return fmt.Errorf("insert payment %s: %w", rec.PaymentID, err)
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Updates = []models.StatusEvent{}
	return nil
}

// Update transitions a payment under a row lock.
func (r *GormPaymentRepository) Update(ctx context.Context, paymentID string, status models.PaymentStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.PaymentRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_id = ?", paymentID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		if err != nil {
			return err
		}

		from := models.PaymentStatus(row.Status)
		if !models.CanTransition(from, status) {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, paymentID, from, status)
		}

		now := r.now().UTC()
		if err := tx.Model(&models.PaymentRow{}).
			Where("payment_id = ?", paymentID).
			Updates(map[string]interface{}{"status": string(status), "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Create(&models.PaymentEventRow{
			PaymentID:  paymentID,
			FromStatus: string(from),
			ToStatus:   string(status),
			Reason:     reason,
			At:         now,
		}).Error
	})
}

// FindByID returns a payment with its audit trail.
func (r *GormPaymentRepository) FindByID(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	var row models.PaymentRow
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	if err != nil {
		return nil, err
	}
	recs, err := r.attachEvents(ctx, []models.PaymentRow{row})
	if err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// FindAll returns every payment, newest first.
func (r *GormPaymentRepository) FindAll(ctx context.Context) ([]models.PaymentRecord, error) {
	return r.find(ctx, r.db.WithContext(ctx))
}

// FindByStatus returns payments currently in status, newest first.
func (r *GormPaymentRepository) FindByStatus(ctx context.Context, status models.PaymentStatus) ([]models.PaymentRecord, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("status = ?", string(status)))
}

// FindByUserID returns a user's payments, newest first.
func (r *GormPaymentRepository) FindByUserID(ctx context.Context, userID int64) ([]models.PaymentRecord, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *GormPaymentRepository) find(ctx context.Context, q *gorm.DB) ([]models.PaymentRecord, error) {
	var rows []models.PaymentRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return r.attachEvents(ctx, rows)
}

func (r *GormPaymentRepository) attachEvents(ctx context.Context, rows []models.PaymentRow) ([]models.PaymentRecord, error) {
	if len(rows) == 0 {
		return []models.PaymentRecord{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.PaymentID)
	}

	var events []models.PaymentEventRow
	if err := r.db.WithContext(ctx).
		Where("payment_id IN ?", ids).
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	byPayment := make(map[string][]models.StatusEvent, len(rows))
	for _, ev := range events {
		byPayment[ev.PaymentID] = append(byPayment[ev.PaymentID], models.StatusEvent{
			From:   models.PaymentStatus(ev.FromStatus),
			To:     models.PaymentStatus(ev.ToStatus),
			Reason: ev.Reason,
			At:     ev.At,
		})
	}

	out := make([]models.PaymentRecord, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("payment %s: bad amount %q: %w", row.PaymentID, row.Amount, err)
		}
		updates := byPayment[row.PaymentID]
		if updates == nil {
			updates = []models.StatusEvent{}
		}
		out = append(out, models.PaymentRecord{
			PaymentID:  row.PaymentID,
			UserID:     row.UserID,
			ChatID:     row.ChatID,
			PlanID:     row.PlanID,
			Amount:     amount,
			PaymentURL: row.PaymentURL,
			Status:     models.PaymentStatus(row.Status),
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  row.UpdatedAt,
			Updates:    updates,
		})
	}
	return out, nil
}
