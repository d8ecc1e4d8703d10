package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vpnshop/internal/billing"
	"vpnshop/internal/models"
)

const jobTimeout = 2 * time.Minute

// Resumer restarts polling for pending payments without a live session.
type Resumer interface {
	Resume(ctx context.Context) (int, error)
}

// PaymentSource lists ledger records for reports.
type PaymentSource interface {
	FindAll(ctx context.Context) ([]models.PaymentRecord, error)
}

// ReportSender delivers reports to admin chats.
type ReportSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, data []byte, filename, caption string) error
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	logger   *zap.Logger
	payments Resumer
	ledger   PaymentSource
	sender   ReportSender
	adminIDs []int64
	now      func() time.Time
}

// New creates a new cron scheduler.
func New(adminIDs []int64, payments Resumer, ledger PaymentSource, sender ReportSender, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
		payments: payments,
		ledger:   ledger,
		sender:   sender,
		adminIDs: adminIDs,
		now:      time.Now,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	// Pick up pending payments whose poll goroutine is gone - every minute
	if _, err := s.cron.AddFunc("0 * * * * *", func() {
		s.logger.Debug("Running: resume pending payments")
		s.resumePending()
	}); err != nil {
		return err
	}

	// Daily payment report - at 23:45
	if _, err := s.cron.AddFunc("0 45 23 * * *", func() {
		s.logger.Debug("Running: daily payment report")
		s.dailyPaymentReport()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ── Resume pending payments ───────────────────────────────────────────

func (s *Scheduler) resumePending() {
	defer s.recoverFromPanic("resumePending")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.payments.Resume(ctx)
	if err != nil {
		if errors.Is(err, billing.ErrReconcilerClosed) {
			return
		}
		s.logger.Warn("Resume pending payments failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Resumed pending payments", zap.Int("count", n))
	}
}

// ── Daily payment report ──────────────────────────────────────────────

func (s *Scheduler) dailyPaymentReport() {
	defer s.recoverFromPanic("dailyPaymentReport")

	if len(s.adminIDs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	records, err := s.ledger.FindAll(ctx)
	if err != nil {
		s.logger.Error("Daily report: load payments failed", zap.Error(err))
		return
	}

	report := buildDailyReport(records, s.now())
	var attachment []byte
	if len(report.Records) > 0 {
		if attachment, err = report.CSV(); err != nil {
			s.logger.Warn("Daily report: render CSV failed", zap.Error(err))
		}
	}
	filename := fmt.Sprintf("payments-%s.csv", report.Day.Format("2006-01-02"))

	for _, adminID := range s.adminIDs {
		if err := s.sender.SendMessage(ctx, adminID, report.Text()); err != nil {
			s.logger.Warn("Daily report: send failed", zap.Int64("admin_id", adminID), zap.Error(err))
			continue
		}
		if attachment == nil {
			continue
		}
		if err := s.sender.SendDocument(ctx, adminID, attachment, filename, "Payments created today"); err != nil {
			s.logger.Warn("Daily report: send CSV failed", zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
	s.logger.Info("Daily payment report sent",
		zap.Int("admins", len(s.adminIDs)),
		zap.Int("payments", len(report.Records)),
	)
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
