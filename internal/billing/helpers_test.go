package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/payment"
	"vpnshop/internal/repository"
)

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	created   int
	polls     map[string]int
	status    func(id string, call int) (*payment.StatusResult, error)
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreatePayment(_ context.Context, amount decimal.Decimal, orderID string, planID int) (*payment.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	id := fmt.Sprintf("pay-%d", g.created)
	return &payment.PaymentResult{PaymentID: id, OrderID: orderID, PaymentURL: "https://pay.example/" + id, Amount: amount}, nil
}

func (g *fakeGateway) PaymentStatus(_ context.Context, id string) (*payment.StatusResult, error) {
	g.mu.Lock()
	if g.polls == nil {
		g.polls = map[string]int{}
	}
	g.polls[id]++
	call := g.polls[id]
	fn := g.status
	g.mu.Unlock()
	if fn == nil {
		return &payment.StatusResult{Status: payment.RemotePending}, nil
	}
	return fn(id, call)
}

func (g *fakeGateway) pollCount(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls[id]
}

func (g *fakeGateway) createCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created
}

type fakeProvisioner struct {
	mu    sync.Mutex
	err   error
	added []panel.CreateUserRequest
}

func (p *fakeProvisioner) AddUser(_ context.Context, req panel.CreateUserRequest) (*panel.ProvisionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.added = append(p.added, req)
	return &panel.ProvisionResult{Username: req.Username, TrafficGB: req.TrafficGB, ExpirationDays: req.ExpirationDays, Output: "ok"}, nil
}

func (p *fakeProvisioner) UserURI(_ context.Context, username string, _ int) (string, error) {
	return "hy2://" + username, nil
}

func (p *fakeProvisioner) ListUsers(context.Context) (map[string]panel.PanelUser, error) {
	return map[string]panel.PanelUser{}, nil
}

func (p *fakeProvisioner) PanelType() string { return "fake" }

func (p *fakeProvisioner) calls() []panel.CreateUserRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]panel.CreateUserRequest(nil), p.added...)
}

type fakeSettings struct{ on bool }

func (s fakeSettings) TestMode(context.Context) (bool, error) { return s.on, nil }

type event struct {
	kind      string
	chatID    int64
	paymentID string
	account   *Account
	err       error
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) add(e event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) AccountReady(_ context.Context, chatID int64, a *Account) {
	n.add(event{kind: "ready", chatID: chatID, account: a})
}
func (n *recordingNotifier) PaymentOverpaid(_ context.Context, chatID int64, _, _ decimal.Decimal) {
	n.add(event{kind: "overpaid", chatID: chatID})
}
func (n *recordingNotifier) PaymentUnderpaid(_ context.Context, chatID int64, _, _ decimal.Decimal) {
	n.add(event{kind: "underpaid", chatID: chatID})
}
func (n *recordingNotifier) PaymentExpired(_ context.Context, chatID int64, id string) {
	n.add(event{kind: "expired", chatID: chatID, paymentID: id})
}
func (n *recordingNotifier) PaymentFailed(_ context.Context, chatID int64, id string, err error) {
	n.add(event{kind: "failed", chatID: chatID, paymentID: id, err: err})
}
func (n *recordingNotifier) ProvisioningFailed(_ context.Context, chatID int64, id string, err error) {
	n.add(event{kind: "provisioning_failed", chatID: chatID, paymentID: id, err: err})
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.kind)
	}
	return out
}

func (n *recordingNotifier) find(kind string) (event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.kind == kind {
			return e, true
		}
	}
	return event{}, false
}

type fixture struct {
	gateway     *fakeGateway
	provisioner *fakeProvisioner
	ledger      *repository.PaymentRepository
	notifier    *recordingNotifier
	reconciler  *Reconciler
}

type fixtureOpts struct {
	testMode bool
	cfg      Config
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	plans := repository.NewPlanRepository(dir)
	for _, p := range []models.Plan{
		{ID: 5, Price: decimal.RequireFromString("2.00"), Days: 30},
		{ID: 50, Price: decimal.RequireFromString("10.00"), Days: 30},
	} {
		if err := plans.Save(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	ledger := repository.NewPaymentRepository(dir)
	catalog, err := NewCatalog(ctx, plans, ledger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := opts.cfg
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}

	f := &fixture{
		gateway:     &fakeGateway{},
		provisioner: &fakeProvisioner{},
		ledger:      ledger,
		notifier:    &recordingNotifier{},
	}
	f.reconciler = NewReconciler(f.gateway, ledger, catalog, f.provisioner, fakeSettings{on: opts.testMode}, cfg, nil)
	f.reconciler.SetNotifier(f.notifier)
	t.Cleanup(f.reconciler.Close)
	return f
}

func (f *fixture) status(t *testing.T, id string) models.PaymentStatus {
	t.Helper()
	rec, err := f.ledger.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return rec.Status
}

func (f *fixture) record(t *testing.T, id string) *models.PaymentRecord {
	t.Helper()
	rec, err := f.ledger.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return rec
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fixture) waitSettled(t *testing.T, id string) models.PaymentStatus {
	t.Helper()
	var st models.PaymentStatus
	waitFor(t, "payment "+id+" to settle", func() bool {
		st = f.status(t, id)
		return st.IsTerminal() && len(f.reconciler.Sessions()) == 0
	})
	return st
}

func paid(amountPaid, amountRequired string) *payment.StatusResult {
	p := decimal.RequireFromString(amountPaid)
	r := decimal.RequireFromString(amountRequired)
	return &payment.StatusResult{Status: payment.RemotePaid, RawStatus: "paid", AmountPaid: &p, AmountRequired: &r}
}

var errBoom = errors.New("boom")
