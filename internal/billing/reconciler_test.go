package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"vpnshop/internal/models"
	"vpnshop/internal/payment"
)

func TestInitiateReturnsHandleOrError(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	h, err := f.reconciler.Initiate(ctx, InitiateRequest{UserID: 1, ChatID: 1, PlanID: 50})
	if (h == nil) == (err == nil) {
		t.Fatalf("handle=%v err=%v: exactly one must be set", h, err)
	}
	if h.PaymentURL == "" || h.TestMode || !h.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("handle = %+v", h)
	}
	if st := f.status(t, h.PaymentID); st != models.PaymentPending {
		t.Fatalf("status = %s, want pending", st)
	}

	h, err = f.reconciler.Initiate(ctx, InitiateRequest{UserID: 1, ChatID: 1, PlanID: 999})
	if h != nil || !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("unknown plan: handle=%v err=%v", h, err)
	}
}

func TestInitiateMissingCredentials(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gateway.createErr = fmt.Errorf("cryptomus create payment failed: %w", payment.ErrCredentialsMissing)

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 1, ChatID: 1, PlanID: 50})
	if h != nil {
		t.Fatalf("handle = %+v, want nil", h)
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || !errors.Is(err, payment.ErrCredentialsMissing) {
		t.Fatalf("err = %v, want *ConfigurationError", err)
	}
	all, _ := f.ledger.FindAll(context.Background())
	if len(all) != 0 {
		t.Fatalf("ledger has %d entries, want 0", len(all))
	}
}

func TestInitiateTransportError(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gateway.createErr = errBoom

	_, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 1, ChatID: 1, PlanID: 50})
	var tErr *TransportError
	if !errors.As(err, &tErr) || !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	all, _ := f.ledger.FindAll(context.Background())
	if len(all) != 0 {
		t.Fatalf("ledger has %d entries, want 0", len(all))
	}
}

func TestInitiateTestMode(t *testing.T) {
	f := newFixture(t, fixtureOpts{testMode: true})

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 42, ChatID: 42, PlanID: 5})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if f.gateway.createCount() != 0 {
		t.Fatal("gateway called in test mode")
	}
	if !h.TestMode || h.PaymentURL != "" || h.Account == nil {
		t.Fatalf("handle = %+v", h)
	}
	if !strings.HasPrefix(h.PaymentID, "test_") {
		t.Fatalf("payment id = %s", h.PaymentID)
	}
	if !strings.HasPrefix(h.Account.Username, "42d") || h.Account.URI == "" {
		t.Fatalf("account = %+v", h.Account)
	}

	calls := f.provisioner.calls()
	if len(calls) != 1 || calls[0].TrafficGB != 5 || calls[0].ExpirationDays != 30 {
		t.Fatalf("provision calls = %+v", calls)
	}
	if st := f.status(t, h.PaymentID); st != models.PaymentTestMode {
		t.Fatalf("status = %s, want test_mode", st)
	}
	if len(f.reconciler.Sessions()) != 0 {
		t.Fatal("test mode payment must not be polled")
	}
}

func TestInitiateTestModeProvisioningFailure(t *testing.T) {
	f := newFixture(t, fixtureOpts{testMode: true})
	f.provisioner.err = errBoom

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 42, ChatID: 42, PlanID: 5})
	var pErr *ProvisioningError
	if h != nil || !errors.As(err, &pErr) {
		t.Fatalf("handle=%v err=%v, want *ProvisioningError", h, err)
	}
	all, _ := f.ledger.FindAll(context.Background())
	if len(all) != 1 || all[0].Status != models.PaymentTestMode {
		t.Fatalf("ledger = %+v", all)
	}
}

func TestPollOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		paid       string
		status     models.PaymentStatus
		provisions bool
		notified   []string
	}{
		{"exact", "10.00", models.PaymentPaidExact, true, []string{"ready"}},
		{"over", "10.01", models.PaymentPaidOver, true, []string{"ready", "overpaid"}},
		{"under", "9.99", models.PaymentPaidUnder, false, []string{"underpaid"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, fixtureOpts{})
			f.gateway.status = func(_ string, call int) (*payment.StatusResult, error) {
				if call < 3 {
					return &payment.StatusResult{Status: payment.RemotePending, RawStatus: "check"}, nil
				}
				return paid(tc.paid, "10.00"), nil
			}

			h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 70, PlanID: 50})
			if err != nil {
				t.Fatal(err)
			}
			if st := f.waitSettled(t, h.PaymentID); st != tc.status {
				t.Fatalf("status = %s, want %s", st, tc.status)
			}

			calls := f.provisioner.calls()
			if tc.provisions && (len(calls) != 1 || calls[0].TrafficGB != 50) {
				t.Fatalf("provision calls = %+v", calls)
			}
			if !tc.provisions && len(calls) != 0 {
				t.Fatalf("provisioned on %s", tc.status)
			}

			got := f.notifier.kinds()
			if strings.Join(got, ",") != strings.Join(tc.notified, ",") {
				t.Fatalf("notifications = %v, want %v", got, tc.notified)
			}
			if e, _ := f.notifier.find(tc.notified[0]); e.chatID != 70 {
				t.Fatalf("notified chat %d, want 70", e.chatID)
			}

			rec := f.record(t, h.PaymentID)
			if len(rec.Updates) != 1 || rec.Updates[0].From != models.PaymentPending || rec.Updates[0].To != tc.status {
				t.Fatalf("updates = %+v", rec.Updates)
			}
		})
	}
}

func TestPollMissingRequiredAmountUsesRecordedAmount(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gateway.status = func(string, int) (*payment.StatusResult, error) {
		p := decimal.RequireFromString("10")
		return &payment.StatusResult{Status: payment.RemotePaid, AmountPaid: &p}, nil
	}
	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentPaidExact {
		t.Fatalf("status = %s, want paid_exact", st)
	}
}

func TestPollExpired(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gateway.status = func(string, int) (*payment.StatusResult, error) {
		return &payment.StatusResult{Status: payment.RemoteExpired, RawStatus: "expired"}, nil
	}

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentExpired {
		t.Fatalf("status = %s, want expired", st)
	}
	if len(f.provisioner.calls()) != 0 {
		t.Fatal("expired payment was provisioned")
	}
	if e, ok := f.notifier.find("expired"); !ok || e.paymentID != h.PaymentID {
		t.Fatalf("expired notification missing: %v", f.notifier.kinds())
	}
}

func TestPollMalformedResponseKeepsPolling(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gateway.status = func(_ string, call int) (*payment.StatusResult, error) {
		if call < 5 {
			return &payment.StatusResult{Status: payment.RemotePending}, nil
		}
		return paid("10", "10"), nil
	}

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentPaidExact {
		t.Fatalf("status = %s", st)
	}
	if n := f.gateway.pollCount(h.PaymentID); n != 5 {
		t.Fatalf("polls = %d, want 5", n)
	}
}

func TestPollStatusErrorMarksError(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.gateway.status = func(string, int) (*payment.StatusResult, error) {
		return nil, errBoom
	}

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentError {
		t.Fatalf("status = %s, want error", st)
	}
	e, ok := f.notifier.find("failed")
	var tErr *TransportError
	if !ok || !errors.As(e.err, &tErr) {
		t.Fatalf("failed notification = %+v", e)
	}
	if n := f.gateway.pollCount(h.PaymentID); n != 1 {
		t.Fatalf("polls = %d, want 1 with no retries", n)
	}
}

func TestPollErrorRetries(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: Config{ErrorRetries: 2}})
	f.gateway.status = func(_ string, call int) (*payment.StatusResult, error) {
		if call <= 2 {
			return nil, errBoom
		}
		return paid("10", "10"), nil
	}

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentPaidExact {
		t.Fatalf("status = %s, want paid_exact", st)
	}
}

// Unrecognized gateway states such as "fail" keep the payment pending until
// the poll bound expires it.
func TestPollUnknownRemoteStatusKeepsPolling(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: Config{MaxPollDuration: 40 * time.Millisecond}})
	f.gateway.status = func(string, int) (*payment.StatusResult, error) {
		return &payment.StatusResult{Status: payment.RemotePending, RawStatus: "system_fail"}, nil
	}
	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentExpired {
		t.Fatalf("status = %s, want expired", st)
	}
	if got := f.gateway.pollCount(h.PaymentID); got < 2 {
		t.Fatalf("status calls = %d, want polling to continue", got)
	}
	if n := len(f.provisioner.calls()); n != 0 {
		t.Fatalf("provisioned %d accounts", n)
	}
}

func TestPollTimeout(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: Config{MaxPollDuration: 30 * time.Millisecond}})

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentExpired {
		t.Fatalf("status = %s, want expired", st)
	}
	rec := f.record(t, h.PaymentID)
	if rec.Updates[0].Reason != ReasonPollTimeout {
		t.Fatalf("reason = %q", rec.Updates[0].Reason)
	}
}

func TestProvisioningFailureAfterPayment(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.provisioner.err = errBoom
	f.gateway.status = func(string, int) (*payment.StatusResult, error) { return paid("10", "10"), nil }

	h, err := f.reconciler.Initiate(context.Background(), InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.waitSettled(t, h.PaymentID); st != models.PaymentPaidExact {
		t.Fatalf("status = %s", st)
	}
	e, ok := f.notifier.find("provisioning_failed")
	var pErr *ProvisioningError
	if !ok || !errors.As(e.err, &pErr) {
		t.Fatalf("provisioning failure not reported: %v", f.notifier.kinds())
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	h, err := f.reconciler.Initiate(ctx, InitiateRequest{UserID: 7, ChatID: 7, PlanID: 50})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first poll", func() bool { return f.gateway.pollCount(h.PaymentID) > 0 })

	if err := f.reconciler.Cancel(ctx, h.PaymentID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	rec := f.record(t, h.PaymentID)
	if rec.Status != models.PaymentExpired || rec.Updates[0].Reason != ReasonCancelled {
		t.Fatalf("record = %+v", rec)
	}
	if len(f.reconciler.Sessions()) != 0 {
		t.Fatal("session not removed")
	}
	if err := f.reconciler.Cancel(ctx, h.PaymentID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second Cancel err = %v", err)
	}
	if n, _ := f.reconciler.Resume(ctx); n != 0 {
		t.Fatalf("cancelled payment resumed (%d)", n)
	}
}

func TestResumeAndClose(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	if err := f.ledger.Record(ctx, &models.PaymentRecord{
		PaymentID: "orphan",
		UserID:    9,
		ChatID:    9,
		PlanID:    50,
		Amount:    decimal.NewFromInt(10),
		Status:    models.PaymentPending,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := f.reconciler.Resume(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Resume = %d, %v", n, err)
	}
	if n, _ := f.reconciler.Resume(ctx); n != 0 {
		t.Fatalf("live session resumed twice (%d)", n)
	}

	f.reconciler.Close()
	if st := f.status(t, "orphan"); st != models.PaymentPending {
		t.Fatalf("status after Close = %s, want pending", st)
	}
	if len(f.reconciler.Sessions()) != 0 {
		t.Fatal("sessions left after Close")
	}
	if _, err := f.reconciler.Initiate(ctx, InitiateRequest{UserID: 1, ChatID: 1, PlanID: 50}); !errors.Is(err, ErrReconcilerClosed) {
		t.Fatalf("Initiate after Close err = %v", err)
	}
}

func TestResumedPaymentProvisionsOnce(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	f.gateway.status = func(string, int) (*payment.StatusResult, error) { return paid("10", "10"), nil }

	if err := f.ledger.Record(ctx, &models.PaymentRecord{
		PaymentID: "p-resume",
		UserID:    9,
		ChatID:    9,
		PlanID:    50,
		Amount:    decimal.NewFromInt(10),
		Status:    models.PaymentPending,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reconciler.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	f.waitSettled(t, "p-resume")

	if n, _ := f.reconciler.Resume(ctx); n != 0 {
		t.Fatalf("settled payment resumed (%d)", n)
	}
	if calls := f.provisioner.calls(); len(calls) != 1 {
		t.Fatalf("provisioned %d times, want 1", len(calls))
	}
}
