package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"vpnshop/internal/metrics"
	"vpnshop/internal/models"
)

// session is the live state of one polled payment.
type session struct {
	models.PaymentSession
	amount decimal.Decimal
	cancel context.CancelFunc
	done   chan struct{}
}

// startSession registers and launches a poll goroutine. It returns false when
// the payment is already tracked or polling is not allowed right now.
func (r *Reconciler) startSession(ps models.PaymentSession, amount decimal.Decimal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, ok := r.sessions[ps.PaymentID]; ok {
		return false
	}
	if _, ok := r.cancelling[ps.PaymentID]; ok {
		return false
	}
	if ps.StartedAt.IsZero() {
		ps.StartedAt = r.now()
	}

	ctx, cancel := context.WithCancel(r.root)
	s := &session{
		PaymentSession: ps,
		amount:         amount,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	r.sessions[ps.PaymentID] = s
	r.wg.Add(1)
	metrics.PollStarted()

	go r.poll(ctx, s)
	return true
}

// endSession drops the session from the registry. It runs before the poll
// goroutine signals completion.
func (r *Reconciler) endSession(s *session) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.PaymentID]; ok && cur == s {
		delete(r.sessions, s.PaymentID)
	}
	r.mu.Unlock()

	s.cancel()
	metrics.PollFinished()
	close(s.done)
	r.wg.Done()
}
