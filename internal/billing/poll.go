package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vpnshop/internal/metrics"
	"vpnshop/internal/models"
	"vpnshop/internal/payment"
)

// poll drives one payment to a terminal status. The ledger is written
// before any account is provisioned.
func (r *Reconciler) poll(ctx context.Context, s *session) {
	defer r.endSession(s)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Payment poll panicked",
				zap.String("payment_id", s.PaymentID),
				zap.Any("panic", rec),
			)
		}
	}()

	log := r.logger.With(zap.String("payment_id", s.PaymentID), zap.Int64("user_id", s.UserID))
	failures := 0

	for {
		res, err := r.gateway.PaymentStatus(ctx, s.PaymentID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			if failures <= r.cfg.ErrorRetries {
				log.Warn("Payment status check failed, retrying", zap.Int("attempt", failures), zap.Error(err))
				if r.timedOut(ctx, s) || !r.sleep(ctx) {
					return
				}
				continue
			}
			log.Error("Payment status check failed", zap.Error(err))
			terr := &TransportError{Op: "payment status", Err: err}
			if r.settle(ctx, s, models.PaymentError, terr.Error()) {
				r.notify().PaymentFailed(detached(ctx), s.ChatID, s.PaymentID, terr)
			}
			return
		}
		failures = 0
		metrics.IncPaymentPoll(string(res.Status))

		switch res.Status {
		case payment.RemotePaid:
			r.settlePaid(ctx, s, res)
			return
		case payment.RemoteExpired:
			if r.settle(ctx, s, models.PaymentExpired, res.RawStatus) {
				r.notify().PaymentExpired(detached(ctx), s.ChatID, s.PaymentID)
			}
			return
		}

		if r.timedOut(ctx, s) || !r.sleep(ctx) {
			return
		}
	}
}

// timedOut expires a payment polled longer than MaxPollDuration. It is only
// consulted after the gateway has answered at least once.
func (r *Reconciler) timedOut(ctx context.Context, s *session) bool {
	if r.cfg.MaxPollDuration <= 0 || r.now().Sub(s.StartedAt) < r.cfg.MaxPollDuration {
		return false
	}
	r.logger.Info("Payment poll timed out", zap.String("payment_id", s.PaymentID))
	if r.settle(ctx, s, models.PaymentExpired, ReasonPollTimeout) {
		r.notify().PaymentExpired(detached(ctx), s.ChatID, s.PaymentID)
	}
	return true
}

func (r *Reconciler) settlePaid(ctx context.Context, s *session, res *payment.StatusResult) {
	required := s.amount
	if res.AmountRequired != nil {
		required = *res.AmountRequired
	}
	paid := decimal.Zero
	if res.AmountPaid != nil {
		paid = *res.AmountPaid
	}

	outcome := Classify(paid, required)
	if !r.settle(ctx, s, outcome, "") {
		return
	}

	bg := detached(ctx)
	n := r.notify()
	if outcome == models.PaymentPaidUnder {
		n.PaymentUnderpaid(bg, s.ChatID, paid, required)
		return
	}

	plan, err := r.catalog.Plan(s.PlanID)
	if err != nil {
		r.logger.Error("Paid payment references unknown plan",
			zap.String("payment_id", s.PaymentID),
			zap.Int("plan_gb", s.PlanID),
			zap.Error(err),
		)
		metrics.IncProvisioning(false)
		n.ProvisioningFailed(bg, s.ChatID, s.PaymentID, &ProvisioningError{PaymentID: s.PaymentID, Err: err})
		return
	}

	account, err := r.provision(bg, s.PaymentID, s.UserID, plan.ID, plan.Days)
	if err != nil {
		n.ProvisioningFailed(bg, s.ChatID, s.PaymentID, err)
		return
	}
	n.AccountReady(bg, s.ChatID, account)
	if outcome == models.PaymentPaidOver {
		n.PaymentOverpaid(bg, s.ChatID, paid, required)
	}
}

// settle writes a terminal status. It returns false when the ledger refused
// the transition, in which case nothing downstream may run.
func (r *Reconciler) settle(ctx context.Context, s *session, status models.PaymentStatus, reason string) bool {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err := r.ledger.Update(uctx, s.PaymentID, status, reason); err != nil {
		r.logger.Error("Ledger rejected payment status",
			zap.String("payment_id", s.PaymentID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return false
	}

	metrics.IncPaymentOutcome(string(status))
	metrics.ObservePollDuration(r.now().Sub(s.StartedAt).Seconds())
	r.logger.Info("Payment settled",
		zap.String("payment_id", s.PaymentID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
	)
	return true
}

// sleep waits one poll interval; it returns false if ctx ended first.
func (r *Reconciler) sleep(ctx context.Context) bool {
	t := time.NewTimer(r.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// detached keeps values but drops cancellation, so provisioning and
// notifications finish once a payment has settled.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
