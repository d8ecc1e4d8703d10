package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/models"
)

// Inline button endpoints. The payload travels in the callback data.
var (
	btnPurchase      = tele.Btn{Unique: "purchase"}
	btnPayCancel     = tele.Btn{Unique: "pay_cancel"}
	btnPlanAdd       = tele.Btn{Unique: "plan_add"}
	btnPlanRemove    = tele.Btn{Unique: "plan_rm"}
	btnPendingCancel = tele.Btn{Unique: "pending_cancel"}
)

// Admin reply keyboard labels.
const (
	adminAddUser         = "➕ Add User"
	adminShowUser        = "👤 Show User"
	adminPaymentSettings = "💳 Payment Settings"
	adminPendingPayments = "⏳ Pending Payments"
	adminEditPlans       = "📝 Edit Plans"
	adminPaymentTest     = "🔧 Payment Test"
	adminEditSupport     = "📞 Edit Support"
	adminBroadcast       = "📢 Broadcast Message"

	labelCancel = "❌ Cancel"

	broadcastAll     = "👥 All Users"
	broadcastActive  = "✅ Active Users"
	broadcastExpired = "⛔️ Expired Users"
)

// downloadLinks are the client apps offered under Downloads.
var downloadLinks = []struct {
	Label string
	URL   string
}{
	{"📱 Android - Play Store", "https://play.google.com/store/apps/details?id=app.hiddify.com&hl=en"},
	{"📱 Android - GitHub", "https://github.com/hiddify/hiddify-app/releases/download/v2.5.7/Hiddify-Android-arm64.apk"},
	{"🍎 iOS", "https://apps.apple.com/us/app/hiddify-proxy-vpn/id6596777532"},
	{"🪟 Windows", "https://github.com/hiddify/hiddify-app/releases/download/v2.5.7/Hiddify-Windows-Setup-x64.exe"},
	{"💻 Other OS", "https://github.com/hiddify/hiddify-app/releases/tag/v2.5.7"},
}

// KeyboardBuilder constructs Telegram keyboards from the plan catalog.
type KeyboardBuilder struct {
	plans Plans
}

// NewKeyboardBuilder creates a new keyboard builder.
func NewKeyboardBuilder(plans Plans) *KeyboardBuilder {
	return &KeyboardBuilder{plans: plans}
}

// MainMenu is the client reply keyboard in the user's language.
func (kb *KeyboardBuilder) MainMenu(lang string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text(tr(lang, keyMyConfigs)), menu.Text(tr(lang, keyPurchasePlan))),
		menu.Row(menu.Text(tr(lang, keyDownloads)), menu.Text(tr(lang, keySupport))),
		menu.Row(menu.Text(tr(lang, keyTestConfig))),
	)
	return menu
}

func (kb *KeyboardBuilder) AdminMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text(adminAddUser), menu.Text(adminShowUser)),
		menu.Row(menu.Text(adminPaymentSettings), menu.Text(adminPendingPayments)),
		menu.Row(menu.Text(adminEditPlans), menu.Text(adminPaymentTest)),
		menu.Row(menu.Text(adminEditSupport), menu.Text(adminBroadcast)),
	)
	return menu
}

func (kb *KeyboardBuilder) LanguageMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	var rows []tele.Row
	for i := 0; i < len(languageButtons); i += 2 {
		btns := []tele.Btn{menu.Text(languageButtons[i].Label)}
		if i+1 < len(languageButtons) {
			btns = append(btns, menu.Text(languageButtons[i+1].Label))
		}
		rows = append(rows, menu.Row(btns...))
	}
	menu.Reply(rows...)
	return menu
}

func (kb *KeyboardBuilder) CancelMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(menu.Row(menu.Text(labelCancel)))
	return menu
}

func (kb *KeyboardBuilder) BroadcastMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text(broadcastAll), menu.Text(broadcastActive)),
		menu.Row(menu.Text(broadcastExpired), menu.Text(labelCancel)),
	)
	return menu
}

// PurchaseMenu lists one inline button per plan, nil when there are none.
func (kb *KeyboardBuilder) PurchaseMenu(lang string) *tele.ReplyMarkup {
	plans := kb.plans.Plans()
	if len(plans) == 0 {
		return nil
	}
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(plans))
	for _, p := range plans {
		label := tr(lang, "plan_button", p.ID, p.Price.StringFixed(2))
		rows = append(rows, menu.Row(menu.Data(label, btnPurchase.Unique, fmt.Sprint(p.ID))))
	}
	menu.Inline(rows...)
	return menu
}

// PaymentMenu carries the checkout link and a cancel button.
func (kb *KeyboardBuilder) PaymentMenu(lang, paymentURL, paymentID string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.URL(tr(lang, "pay_now"), paymentURL)),
		menu.Row(menu.Data(tr(lang, "cancel_payment"), btnPayCancel.Unique, paymentID)),
	)
	return menu
}

func (kb *KeyboardBuilder) DownloadsMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(downloadLinks))
	for _, l := range downloadLinks {
		rows = append(rows, menu.Row(menu.URL(l.Label, l.URL)))
	}
	menu.Inline(rows...)
	return menu
}

// PlanAdminMenu offers add/update plus a remove button per plan.
func (kb *KeyboardBuilder) PlanAdminMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := []tele.Row{menu.Row(menu.Data("➕ Add / Update Plan", btnPlanAdd.Unique))}
	for _, p := range kb.plans.Plans() {
		rows = append(rows, menu.Row(menu.Data(fmt.Sprintf("🗑 Remove %d GB", p.ID), btnPlanRemove.Unique, fmt.Sprint(p.ID))))
	}
	menu.Inline(rows...)
	return menu
}

// PendingMenu has one cancel button per polled payment.
func (kb *KeyboardBuilder) PendingMenu(sessions []models.PaymentSession) *tele.ReplyMarkup {
	if len(sessions) == 0 {
		return nil
	}
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, menu.Row(menu.Data("❌ Cancel "+shortID(s.PaymentID), btnPendingCancel.Unique, s.PaymentID)))
	}
	menu.Inline(rows...)
	return menu
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
