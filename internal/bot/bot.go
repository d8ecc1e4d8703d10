package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/billing"
	"vpnshop/internal/config"
	"vpnshop/internal/metrics"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/repository"
)

const handlerTimeout = 2 * time.Minute

// Payments is the part of the reconciler the bot drives.
type Payments interface {
	Initiate(ctx context.Context, req billing.InitiateRequest) (*billing.Handle, error)
	Cancel(ctx context.Context, paymentID string) error
	ProvisionAccount(ctx context.Context, userID int64, trafficGB, days int) (*billing.Account, error)
	Sessions() []models.PaymentSession
}

// Plans is the catalog surface used by the menus.
type Plans interface {
	Plans() []models.Plan
	Plan(id int) (models.Plan, error)
	Upsert(ctx context.Context, plan models.Plan) error
	Remove(ctx context.Context, id int) error
}

// Deps bundles everything the handlers need.
type Deps struct {
	Payments Payments
	Plans    Plans
	Ledger   billing.Ledger
	Panel    panel.Provisioner
	Settings *repository.SettingRepository
	Users    *repository.UserRepository
}

// sender is the outbound half of *tele.Bot.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Bot wraps the telebot instance and handlers.
type Bot struct {
	tb         *tele.Bot
	webhook    *tele.Webhook
	useWebhook bool
	cfg        *config.Config
	deps       Deps
	out        sender
	keyboard   *KeyboardBuilder
	steps      *stepStore
	logger     *zap.Logger
}

var _ billing.Notifier = (*Bot)(nil)

// New creates and configures a new Bot instance.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Bot, error) {
	mode := cfg.Bot.UpdateMode
	if mode == "" {
		mode = "auto"
	}

	useWebhook := true
	switch mode {
	case "polling":
		useWebhook = false
	case "webhook":
		useWebhook = true
	default: // auto
		useWebhook = strings.TrimSpace(cfg.Bot.WebhookURL) != ""
	}

	var poller tele.Poller
	var webhook *tele.Webhook
	if useWebhook {
		if strings.TrimSpace(cfg.Bot.WebhookURL) == "" {
			return nil, fmt.Errorf("BOT_WEBHOOK_URL is required when BOT_UPDATE_MODE=webhook")
		}
		webhook = &tele.Webhook{
			Listen:   "", // Empty: we mount on Echo instead of telebot's own server
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
		poller = webhook
	} else {
		poller = &tele.LongPoller{Timeout: 10 * time.Second}
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: poller,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	b := &Bot{
		tb:         tb,
		webhook:    webhook,
		useWebhook: useWebhook,
		cfg:        cfg,
		deps:       deps,
		out:        tb,
		keyboard:   NewKeyboardBuilder(deps.Plans),
		steps:      newStepStore(),
		logger:     logger,
	}

	b.registerHandlers()

	return b, nil
}

// WebhookHandler returns the webhook handler for mounting on Echo.
// Returns nil when running in long-polling mode.
func (b *Bot) WebhookHandler() http.Handler {
	if b.webhook == nil {
		return nil
	}
	return b.webhook
}

// Start begins polling/webhook processing. It blocks until Stop.
func (b *Bot) Start() {
	if b.useWebhook {
		b.logger.Info("Starting Telegram bot", zap.String("mode", "webhook"), zap.String("webhook_url", b.cfg.Bot.WebhookURL))
	} else {
		// Long polling requires webhook to be removed first.
		if err := b.tb.RemoveWebhook(true); err != nil {
			b.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
		}
		b.logger.Info("Starting Telegram bot", zap.String("mode", "polling"))
	}
	b.tb.Start()
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// registerHandlers sets up all bot message and callback handlers.
func (b *Bot) registerHandlers() {
	b.tb.Use(b.trackUpdates)

	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/language", b.handleLanguageCommand)
	b.tb.Handle(tele.OnText, b.handleText)

	b.tb.Handle(&btnPurchase, b.handlePurchase)
	b.tb.Handle(&btnPayCancel, b.handlePaymentCancel)
	b.tb.Handle(&btnPlanAdd, b.handlePlanAdd)
	b.tb.Handle(&btnPlanRemove, b.handlePlanRemove)
	b.tb.Handle(&btnPendingCancel, b.handlePendingCancel)
}

func (b *Bot) trackUpdates(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		kind := "message"
		switch {
		case c.Callback() != nil:
			kind = "callback"
		case strings.HasPrefix(c.Text(), "/"):
			kind = "command"
		}
		metrics.IncBotUpdate(kind)
		return next(c)
	}
}

// ── /start ────────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	userID := c.Sender().ID
	b.steps.clear(userID)

	if b.isAdmin(userID) {
		return c.Send("👋 Welcome, admin.", b.keyboard.AdminMenu())
	}

	ctx, cancel := handlerContext()
	defer cancel()
	lang, err := b.deps.Users.Language(ctx, userID)
	if err != nil {
		b.logger.Warn("Failed to load user language", zap.Int64("user_id", userID), zap.Error(err))
	}
	if lang == "" {
		return c.Send(languagePrompt, b.keyboard.LanguageMenu())
	}
	return c.Send(tr(lang, "welcome"), b.keyboard.MainMenu(lang))
}

func (b *Bot) handleLanguageCommand(c tele.Context) error {
	return c.Send(languagePrompt, b.keyboard.LanguageMenu())
}

func (b *Bot) selectLanguage(c tele.Context, code string) error {
	userID := c.Sender().ID
	ctx, cancel := handlerContext()
	defer cancel()

	if err := b.deps.Users.SetLanguage(ctx, userID, code); err != nil {
		b.logger.Error("Failed to save user language", zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := c.Send(tr(code, "language_selected"), b.keyboard.MainMenu(code)); err != nil {
		return err
	}
	return c.Send(tr(code, "welcome"))
}

// ── Text routing ──────────────────────────────────────────────────────

func (b *Bot) handleText(c tele.Context) error {
	userID := c.Sender().ID
	text := strings.TrimSpace(c.Text())

	if b.isAdmin(userID) {
		if st := b.steps.get(userID); st.Name != stepNone {
			return b.handleAdminStep(c, st, text)
		}
		if handled, err := b.handleAdminMenu(c, text); handled {
			return err
		}
	}

	if code := languageCode(text); code != "" {
		return b.selectLanguage(c, code)
	}

	switch menuAction(text) {
	case keyMyConfigs:
		return b.showMyConfigs(c)
	case keyPurchasePlan:
		return b.showPurchaseOptions(c)
	case keyDownloads:
		return b.showDownloads(c)
	case keySupport:
		return b.showSupport(c)
	case keyTestConfig:
		return b.handleTestConfig(c)
	}

	if b.isAdmin(userID) {
		return c.Send("Please use the admin menu.", b.keyboard.AdminMenu())
	}
	lang := b.lang(userID)
	return c.Send(tr(lang, "use_menu"), b.keyboard.MainMenu(lang))
}

// ── Helpers ───────────────────────────────────────────────────────────

func (b *Bot) isAdmin(userID int64) bool {
	return b.cfg.Bot.IsAdmin(userID)
}

// lang returns the stored language for a user, English when unset.
func (b *Bot) lang(userID int64) string {
	ctx, cancel := handlerContext()
	defer cancel()

	code, err := b.deps.Users.Language(ctx, userID)
	if err != nil {
		b.logger.Warn("Failed to load user language", zap.Int64("user_id", userID), zap.Error(err))
	}
	return normalizeLanguage(code)
}

func handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}
