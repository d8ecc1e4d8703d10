package bot

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/billing"
	"vpnshop/internal/panel"
)

const bytesPerGB = 1 << 30

// ── Purchase ──────────────────────────────────────────────────────────

func (b *Bot) showPurchaseOptions(c tele.Context) error {
	lang := b.lang(c.Sender().ID)
	menu := b.keyboard.PurchaseMenu(lang)
	if menu == nil {
		return c.Send(tr(lang, "no_plans"))
	}
	return c.Send(tr(lang, "select_plan"), menu)
}

func (b *Bot) handlePurchase(c tele.Context) error {
	userID := c.Sender().ID
	lang := b.lang(userID)

	planID, err := strconv.Atoi(c.Data())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: tr(lang, "invalid_plan")})
	}
	_ = c.Respond()

	ctx, cancel := handlerContext()
	defer cancel()

	h, err := b.deps.Payments.Initiate(ctx, billing.InitiateRequest{
		UserID: userID,
		ChatID: c.Chat().ID,
		PlanID: planID,
	})
	if err != nil {
		return b.replyInitiateError(c, lang, err)
	}

	if h.TestMode {
		return b.sendAccount(c.Chat(), lang, tr(lang, "test_mode_created"), h.Account)
	}
	text := tr(lang, "payment_created", h.Plan.ID, h.Amount.StringFixed(2), h.PaymentID)
	return c.Edit(text, b.keyboard.PaymentMenu(lang, h.PaymentURL, h.PaymentID))
}

func (b *Bot) replyInitiateError(c tele.Context, lang string, err error) error {
	var cfgErr *billing.ConfigurationError
	var provErr *billing.ProvisioningError
	switch {
	case errors.Is(err, billing.ErrPlanNotFound):
		return c.Send(tr(lang, "invalid_plan"))
	case errors.As(err, &cfgErr):
		return c.Send(tr(lang, "payment_not_ready"), b.keyboard.MainMenu(lang))
	case errors.As(err, &provErr):
		return c.Send(tr(lang, "provision_failed", provErr.PaymentID), b.keyboard.MainMenu(lang))
	default:
		b.logger.Warn("Purchase failed", zap.Int64("user_id", c.Sender().ID), zap.Error(err))
		return c.Send(tr(lang, "payment_error"), b.keyboard.MainMenu(lang))
	}
}

// handlePaymentCancel lets a buyer abandon their own pending payment.
func (b *Bot) handlePaymentCancel(c tele.Context) error {
	userID := c.Sender().ID
	lang := b.lang(userID)
	paymentID := c.Data()

	ctx, cancel := handlerContext()
	defer cancel()

	rec, err := b.deps.Ledger.FindByID(ctx, paymentID)
	if err != nil || rec.UserID != userID {
		return c.Respond(&tele.CallbackResponse{Text: tr(lang, "cancel_failed")})
	}
	if err := b.deps.Payments.Cancel(ctx, paymentID); err != nil {
		b.logger.Info("Payment cancel refused", zap.String("payment_id", paymentID), zap.Error(err))
		return c.Respond(&tele.CallbackResponse{Text: tr(lang, "cancel_failed")})
	}
	_ = c.Respond()
	return c.Edit(tr(lang, "payment_cancelled", paymentID))
}

// ── My Configs ────────────────────────────────────────────────────────

func (b *Bot) showMyConfigs(c tele.Context) error {
	userID := c.Sender().ID
	lang := b.lang(userID)

	ctx, cancel := handlerContext()
	defer cancel()

	users, err := b.deps.Panel.ListUsers(ctx)
	if err != nil {
		b.logger.Error("List VPN users failed", zap.Int64("user_id", userID), zap.Error(err))
		return c.Send(tr(lang, "configs_error"))
	}

	names := ownedConfigs(users, userID)
	if len(names) == 0 {
		return c.Send(tr(lang, "no_configs"))
	}

	for _, name := range names {
		u := users[name]
		uri, err := b.deps.Panel.UserURI(ctx, name, b.cfg.Provisioner.IPVersion)
		if err != nil {
			b.logger.Warn("Fetch connection URI failed", zap.String("username", name), zap.Error(err))
		}
		caption := accountCaption(lang, name, u.UsedDownloadBytes, u.MaxDownloadBytes, u.RemainingDays, u.ExpirationDays, uri)
		if err := b.sendConfig(c.Chat(), caption, uri); err != nil {
			return err
		}
	}
	return nil
}

// ownedConfigs returns the non-blocked accounts created for userID, in
// creation order.
func ownedConfigs(users map[string]panel.PanelUser, userID int64) []string {
	prefix := strconv.FormatInt(userID, 10) + "d"
	var names []string
	for name, u := range users {
		if strings.HasPrefix(name, prefix) && !u.Blocked {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ── Test config ───────────────────────────────────────────────────────

func (b *Bot) handleTestConfig(c tele.Context) error {
	userID := c.Sender().ID
	lang := b.lang(userID)

	ctx, cancel := handlerContext()
	defer cancel()

	claimed, err := b.deps.Users.ClaimTestConfig(ctx, userID)
	if err != nil {
		b.logger.Error("Claim test config failed", zap.Int64("user_id", userID), zap.Error(err))
		return c.Send(tr(lang, "test_failed"))
	}
	if !claimed {
		return c.Send(tr(lang, "test_used"), b.keyboard.MainMenu(lang))
	}

	account, err := b.deps.Payments.ProvisionAccount(ctx, userID, b.cfg.Bot.TestConfigTrafficGB, b.cfg.Bot.TestConfigDays)
	if err != nil {
		if rerr := b.deps.Users.ReleaseTestConfig(ctx, userID); rerr != nil {
			b.logger.Error("Release test config failed", zap.Int64("user_id", userID), zap.Error(rerr))
		}
		return c.Send(tr(lang, "test_failed"))
	}
	return b.sendAccount(c.Chat(), lang, "", account)
}

// ── Downloads / Support ───────────────────────────────────────────────

func (b *Bot) showDownloads(c tele.Context) error {
	lang := b.lang(c.Sender().ID)
	return c.Send(tr(lang, "downloads_title"), b.keyboard.DownloadsMenu())
}

func (b *Bot) showSupport(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	text, err := b.deps.Settings.SupportText(ctx)
	if err != nil {
		b.logger.Warn("Load support text failed", zap.Error(err))
	}
	return c.Send(text)
}

// ── Account rendering ─────────────────────────────────────────────────

// sendAccount delivers a freshly provisioned account with its QR code.
func (b *Bot) sendAccount(to tele.Recipient, lang, heading string, acc *billing.Account) error {
	caption := accountCaption(lang, acc.Username, 0, int64(acc.TrafficGB)*bytesPerGB, 0, acc.Days, acc.URI)
	if heading != "" {
		caption = html.EscapeString(heading) + "\n\n" + caption
	}
	return b.sendConfig(to, caption, acc.URI)
}

// sendConfig sends caption with a QR of uri, or as plain text when there is
// no uri to encode.
func (b *Bot) sendConfig(to tele.Recipient, caption, uri string) error {
	if uri != "" {
		png, err := renderQR(uri)
		if err == nil {
			_, err = b.out.Send(to, &tele.Photo{File: tele.FromReader(png), Caption: caption}, tele.ModeHTML)
			return err
		}
		b.logger.Warn("QR rendering failed", zap.Error(err))
	}
	_, err := b.out.Send(to, caption, tele.ModeHTML)
	return err
}

func accountCaption(lang, username string, usedBytes, maxBytes int64, remainingDays, totalDays int, uri string) string {
	if uri == "" {
		uri = tr(lang, "config_uri_missing")
	}
	return tr(lang, "config_caption",
		html.EscapeString(username),
		formatGB(usedBytes),
		formatGB(maxBytes),
		remainingDays,
		totalDays,
		html.EscapeString(uri),
	)
}

func formatGB(b int64) string {
	return fmt.Sprintf("%.2f", float64(b)/bytesPerGB)
}
