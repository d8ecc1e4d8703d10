package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"vpnshop/internal/models"
)

const paymentsFile = "payments.json"

// PaymentRepository is the JSON-file payment ledger. Records are keyed by
// payment id and never deleted.
type PaymentRepository struct {
	file *jsonFile
	now  func() time.Time
}

func NewPaymentRepository(dataDir string) *PaymentRepository {
	return &PaymentRepository{
		file: newJSONFile(dataPath(dataDir, paymentsFile)),
		now:  time.Now,
	}
}

// Record stores a new payment. Initial status must be pending or test_mode.
func (r *PaymentRepository) Record(ctx context.Context, rec *models.PaymentRecord) error {
	if err := checkInitial(rec); err != nil {
		return err
	}
	return r.file.withLock(ctx, func() error {
		all := map[string]*models.PaymentRecord{}
		if err := r.file.read(&all); err != nil {
			return err
		}
		if _, ok := all[rec.PaymentID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePayment, rec.PaymentID)
		}

		now := r.now().UTC()
		rec.CreatedAt = now
		rec.UpdatedAt = now
		rec.Updates = []models.StatusEvent{}

		stored := *rec
		all[rec.PaymentID] = &stored
		return r.file.write(all)
	})
}

// Update moves a pending record to a terminal status and appends the event.
func (r *PaymentRepository) Update(ctx context.Context, paymentID string, status models.PaymentStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.file.withLock(ctx, func() error {
		all := map[string]*models.PaymentRecord{}
		if err := r.file.read(&all); err != nil {
			return err
		}
		rec, ok := all[paymentID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		if err := applyTransition(rec, status, reason, r.now().UTC()); err != nil {
			return err
		}
		return r.file.write(all)
	})
}

// FindByID returns a single record.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := all[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	return rec, nil
}

// FindAll returns every record, newest first.
func (r *PaymentRepository) FindAll(ctx context.Context) ([]models.PaymentRecord, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortedRecords(all, func(*models.PaymentRecord) bool { return true }), nil
}

// FindByStatus returns records currently in status, newest first.
func (r *PaymentRepository) FindByStatus(ctx context.Context, status models.PaymentStatus) ([]models.PaymentRecord, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortedRecords(all, func(rec *models.PaymentRecord) bool { return rec.Status == status }), nil
}

// FindByUserID returns a user's records, newest first.
func (r *PaymentRepository) FindByUserID(ctx context.Context, userID int64) ([]models.PaymentRecord, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortedRecords(all, func(rec *models.PaymentRecord) bool { return rec.UserID == userID }), nil
}

func (r *PaymentRepository) loadAll(ctx context.Context) (map[string]*models.PaymentRecord, error) {
	all := map[string]*models.PaymentRecord{}
	if err := r.file.load(ctx, &all); err != nil {
		return nil, err
	}
	for id, rec := range all {
		if rec.PaymentID == "" {
			rec.PaymentID = id
		}
	}
	return all, nil
}

func sortedRecords(all map[string]*models.PaymentRecord, keep func(*models.PaymentRecord) bool) []models.PaymentRecord {
	out := make([]models.PaymentRecord, 0, len(all))
	for _, rec := range all {
		if keep(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PaymentID < out[j].PaymentID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func checkInitial(rec *models.PaymentRecord) error {
	if rec == nil || rec.PaymentID == "" {
		return fmt.Errorf("%w: empty payment id", ErrInvalidStatus)
	}
	if !models.IsInitialStatus(rec.Status) {
		return fmt.Errorf("%w: cannot record payment %s as %q", ErrInvalidStatus, rec.PaymentID, rec.Status)
	}
	return nil
}

// applyTransition validates and applies a status change in place.
func applyTransition(rec *models.PaymentRecord, to models.PaymentStatus, reason string, at time.Time) error {
	if !models.CanTransition(rec.Status, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, rec.PaymentID, rec.Status, to)
	}
	rec.Updates = append(rec.Updates, models.StatusEvent{
		From:   rec.Status,
		To:     to,
		Reason: reason,
		At:     at,
	})
	rec.Status = to
	rec.UpdatedAt = at
	return nil
}
