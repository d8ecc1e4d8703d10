package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vpnshop/internal/metrics"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/payment"
)

const (
	DefaultPollInterval    = 30 * time.Second
	DefaultMaxPollDuration = 2 * time.Hour

	ReasonCancelled   = "cancelled"
	ReasonPollTimeout = "poll timeout"

	settleTimeout = 2 * time.Minute
)

// Config tunes the polling loop.
type Config struct {
	PollInterval    time.Duration
	MaxPollDuration time.Duration // 0 polls until the gateway settles
	ErrorRetries    int           // consecutive status errors tolerated before giving up
	IPVersion       int
}

// InitiateRequest asks for a payment for one plan.
type InitiateRequest struct {
	UserID int64
	ChatID int64
	PlanID int
}

// Handle is what the buyer needs after Initiate: a payment link, or in test
// mode the account itself.
type Handle struct {
	PaymentID  string
	PaymentURL string
	Amount     decimal.Decimal
	Plan       models.Plan
	TestMode   bool
	Account    *Account
}

// Reconciler owns the payment lifecycle: it opens payments, polls each one
// in its own goroutine and provisions exactly once on success.
type Reconciler struct {
	gateway     payment.Gateway
	ledger      Ledger
	catalog     *Catalog
	provisioner panel.Provisioner
	settings    TestModeSource
	logger      *zap.Logger
	cfg         Config

	notifyMu sync.RWMutex
	notifier Notifier

	now        func() time.Time
	newOrderID func() string
	usernames  *usernameSource

	mu         sync.Mutex
	sessions   map[string]*session
	cancelling map[string]struct{}
	closed     bool
	root       context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
}

func NewReconciler(
	gateway payment.Gateway,
	ledger Ledger,
	catalog *Catalog,
	provisioner panel.Provisioner,
	settings TestModeSource,
	cfg Config,
	logger *zap.Logger,
) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollDuration < 0 {
		cfg.MaxPollDuration = 0
	}
	if cfg.ErrorRetries < 0 {
		cfg.ErrorRetries = 0
	}
	if cfg.IPVersion != 6 {
		cfg.IPVersion = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	root, stop := context.WithCancel(context.Background())
	return &Reconciler{
		gateway:     gateway,
		ledger:      ledger,
		catalog:     catalog,
		provisioner: provisioner,
		settings:    settings,
		logger:      logger,
		cfg:         cfg,
		notifier:    nopNotifier{},
		now:         time.Now,
		newOrderID:  func() string { return uuid.New().String() },
		usernames:   newUsernameSource(),
		sessions:    make(map[string]*session),
		cancelling:  make(map[string]struct{}),
		root:        root,
		stop:        stop,
	}
}

// SetNotifier installs the outcome sink. The bot registers itself here once
// it is constructed.
func (r *Reconciler) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	r.notifyMu.Lock()
	r.notifier = n
	r.notifyMu.Unlock()
}

func (r *Reconciler) notify() Notifier {
	r.notifyMu.RLock()
	defer r.notifyMu.RUnlock()
	return r.notifier
}

// Start resumes polling for payments left pending by a previous run.
func (r *Reconciler) Start(ctx context.Context) error {
	n, err := r.Resume(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("Resumed pending payments", zap.Int("count", n))
	}
	return nil
}

// Close stops every poll goroutine and waits for them. Their ledger entries
// stay pending so the next Start picks them up.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stop()
	r.wg.Wait()
}

// Initiate opens a payment for the requested plan. Exactly one of the
// returned handle and error is non-nil.
func (r *Reconciler) Initiate(ctx context.Context, req InitiateRequest) (*Handle, error) {
	if r.isClosed() {
		return nil, ErrReconcilerClosed
	}
	plan, err := r.catalog.Plan(req.PlanID)
	if err != nil {
		return nil, err
	}

	testMode, err := r.settings.TestMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("read test mode: %w", err)
	}
	if testMode {
		return r.initiateTest(ctx, req, plan)
	}

	orderID := r.newOrderID()
	res, err := r.gateway.CreatePayment(ctx, plan.Price, orderID, plan.ID)
	if err != nil {
		if errors.Is(err, payment.ErrCredentialsMissing) {
			metrics.IncPaymentInitiated("gateway", "misconfigured")
			r.logger.Error("Payment gateway credentials missing", zap.Int64("user_id", req.UserID))
			return nil, &ConfigurationError{Err: err}
		}
		metrics.IncPaymentInitiated("gateway", "failed")
		r.logger.Warn("Create payment failed",
			zap.Int64("user_id", req.UserID),
			zap.Int("plan_gb", plan.ID),
			zap.Error(err),
		)
		return nil, &TransportError{Op: "create payment", Err: err}
	}

	rec := &models.PaymentRecord{
		PaymentID:  res.PaymentID,
		UserID:     req.UserID,
		ChatID:     req.ChatID,
		PlanID:     plan.ID,
		Amount:     plan.Price,
		PaymentURL: res.PaymentURL,
		Status:     models.PaymentPending,
	}
	if err := r.ledger.Record(ctx, rec); err != nil {
		metrics.IncPaymentInitiated("gateway", "failed")
		r.logger.Error("Record payment failed", zap.String("payment_id", res.PaymentID), zap.Error(err))
		return nil, fmt.Errorf("record payment %s: %w", res.PaymentID, err)
	}

	if !r.startSession(models.PaymentSession{
		PaymentID: rec.PaymentID,
		UserID:    rec.UserID,
		ChatID:    rec.ChatID,
		PlanID:    rec.PlanID,
		StartedAt: rec.CreatedAt,
	}, rec.Amount) && r.isClosed() {
		r.logger.Warn("Payment recorded while shutting down; it will resume on next start",
			zap.String("payment_id", rec.PaymentID))
	}

	metrics.IncPaymentInitiated("gateway", "created")
	r.logger.Info("Payment created",
		zap.String("payment_id", rec.PaymentID),
		zap.String("order_id", orderID),
		zap.Int64("user_id", rec.UserID),
		zap.Int("plan_gb", plan.ID),
		zap.String("amount", plan.Price.String()),
	)

	return &Handle{
		PaymentID:  rec.PaymentID,
		PaymentURL: rec.PaymentURL,
		Amount:     plan.Price,
		Plan:       plan,
	}, nil
}

func (r *Reconciler) initiateTest(ctx context.Context, req InitiateRequest, plan models.Plan) (*Handle, error) {
	paymentID := fmt.Sprintf("test_%d", r.now().UnixNano())
	rec := &models.PaymentRecord{
		PaymentID: paymentID,
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Status:    models.PaymentTestMode,
	}
	if err := r.ledger.Record(ctx, rec); err != nil {
		metrics.IncPaymentInitiated("test", "failed")
		r.logger.Error("Record test payment failed", zap.String("payment_id", paymentID), zap.Error(err))
		return nil, fmt.Errorf("record payment %s: %w", paymentID, err)
	}
	metrics.IncPaymentInitiated("test", "created")
	metrics.IncPaymentOutcome(string(models.PaymentTestMode))

	account, err := r.provision(ctx, paymentID, req.UserID, plan.ID, plan.Days)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Test mode payment provisioned",
		zap.String("payment_id", paymentID),
		zap.Int64("user_id", req.UserID),
		zap.String("username", account.Username),
	)
	return &Handle{
		PaymentID: paymentID,
		Amount:    plan.Price,
		Plan:      plan,
		TestMode:  true,
		Account:   account,
	}, nil
}

// ProvisionAccount creates an account outside the payment flow, e.g. the
// one-time free test config.
func (r *Reconciler) ProvisionAccount(ctx context.Context, userID int64, trafficGB, days int) (*Account, error) {
	return r.provision(ctx, "", userID, trafficGB, days)
}

func (r *Reconciler) provision(ctx context.Context, paymentID string, userID int64, trafficGB, days int) (*Account, error) {
	username := r.usernames.next(userID, r.now())
	res, err := r.provisioner.AddUser(ctx, panel.CreateUserRequest{
		Username:       username,
		TrafficGB:      trafficGB,
		ExpirationDays: days,
	})
	if err != nil {
		metrics.IncProvisioning(false)
		r.logger.Error("Provisioning failed",
			zap.String("payment_id", paymentID),
			zap.Int64("user_id", userID),
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, &ProvisioningError{PaymentID: paymentID, Username: username, Err: err}
	}
	metrics.IncProvisioning(true)

	uri, err := r.provisioner.UserURI(ctx, username, r.cfg.IPVersion)
	if err != nil {
		r.logger.Warn("Fetch connection URI failed",
			zap.String("username", username),
			zap.Error(err),
		)
	}
	return &Account{
		Username:  username,
		TrafficGB: trafficGB,
		Days:      days,
		URI:       uri,
		Output:    res.Output,
	}, nil
}

// Cancel stops polling a payment and marks it expired.
func (r *Reconciler) Cancel(ctx context.Context, paymentID string) error {
	r.mu.Lock()
	s, ok := r.sessions[paymentID]
	if ok {
		r.cancelling[paymentID] = struct{}{}
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, paymentID)
	}
	defer func() {
		r.mu.Lock()
		delete(r.cancelling, paymentID)
		r.mu.Unlock()
	}()

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := r.ledger.Update(ctx, paymentID, models.PaymentExpired, ReasonCancelled); err != nil {
		r.logger.Warn("Cancel payment: ledger update rejected",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return err
	}
	metrics.IncPaymentOutcome(string(models.PaymentExpired))
	r.logger.Info("Payment cancelled", zap.String("payment_id", paymentID))
	return nil
}

// Resume starts a poll goroutine for every pending ledger entry that has no
// live session and returns how many were started.
func (r *Reconciler) Resume(ctx context.Context) (int, error) {
	if r.isClosed() {
		return 0, ErrReconcilerClosed
	}
	pending, err := r.ledger.FindByStatus(ctx, models.PaymentPending)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}

	started := 0
	for _, rec := range pending {
		ok := r.startSession(models.PaymentSession{
			PaymentID: rec.PaymentID,
			UserID:    rec.UserID,
			ChatID:    rec.ChatID,
			PlanID:    rec.PlanID,
			StartedAt: rec.CreatedAt,
		}, rec.Amount)
		if ok {
			started++
		}
	}
	return started, nil
}

// Sessions returns a snapshot of payments being polled.
func (r *Reconciler) Sessions() []models.PaymentSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.PaymentSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.PaymentSession)
	}
	return out
}

func (r *Reconciler) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
