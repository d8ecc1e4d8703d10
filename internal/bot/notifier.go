package bot

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/billing"
)

// The methods below implement billing.Notifier. Delivery failures are
// logged; the payment outcome is already in the ledger.

func (b *Bot) AccountReady(ctx context.Context, chatID int64, account *billing.Account) {
	lang := b.chatLang(ctx, chatID)
	if err := b.sendAccount(tele.ChatID(chatID), lang, tr(lang, "payment_confirmed"), account); err != nil {
		b.logDelivery("account_ready", chatID, err)
	}
}

func (b *Bot) PaymentOverpaid(ctx context.Context, chatID int64, paid, required decimal.Decimal) {
	lang := b.chatLang(ctx, chatID)
	b.notifyChat(chatID, "overpaid", tr(lang, "overpaid", paid.StringFixed(2), required.StringFixed(2)))
}

func (b *Bot) PaymentUnderpaid(ctx context.Context, chatID int64, paid, required decimal.Decimal) {
	lang := b.chatLang(ctx, chatID)
	b.notifyChat(chatID, "underpaid", tr(lang, "underpaid", paid.StringFixed(2), required.StringFixed(2)))
}

func (b *Bot) PaymentExpired(ctx context.Context, chatID int64, paymentID string) {
	lang := b.chatLang(ctx, chatID)
	b.notifyChat(chatID, "expired", tr(lang, "expired"))
}

func (b *Bot) PaymentFailed(ctx context.Context, chatID int64, paymentID string, err error) {
	lang := b.chatLang(ctx, chatID)
	b.notifyChat(chatID, "failed", tr(lang, "status_error", paymentID))
}

// ProvisioningFailed tells the buyer and alerts every admin.
func (b *Bot) ProvisioningFailed(ctx context.Context, chatID int64, paymentID string, err error) {
	lang := b.chatLang(ctx, chatID)
	b.notifyChat(chatID, "provisioning_failed", tr(lang, "provision_failed", paymentID))
	b.notifyAdmins(fmt.Sprintf("🚨 Provisioning failed\nPayment: %s\nChat: %d\nError: %v", paymentID, chatID, err))
}

func (b *Bot) notifyChat(chatID int64, kind, text string) {
	if _, err := b.out.Send(tele.ChatID(chatID), text); err != nil {
		b.logDelivery(kind, chatID, err)
	}
}

func (b *Bot) notifyAdmins(text string) {
	for _, id := range b.cfg.Bot.AdminIDs {
		if _, err := b.out.Send(tele.ChatID(id), text); err != nil {
			b.logDelivery("admin_alert", id, err)
		}
	}
}

func (b *Bot) logDelivery(kind string, chatID int64, err error) {
	b.logger.Warn("Notification delivery failed",
		zap.String("kind", kind),
		zap.Int64("chat_id", chatID),
		zap.Error(err),
	)
}

// chatLang resolves the language for a private chat, whose id equals the
// user id.
func (b *Bot) chatLang(ctx context.Context, chatID int64) string {
	code, err := b.deps.Users.Language(ctx, chatID)
	if err != nil {
		b.logger.Warn("Failed to load user language", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return normalizeLanguage(code)
}
