package bot

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/billing"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/pkg/utils"
	"vpnshop/internal/repository"
)

const pendingListLimit = 20

// handleAdminMenu dispatches admin reply-keyboard buttons. It reports false
// when text is not one of them.
func (b *Bot) handleAdminMenu(c tele.Context, text string) (bool, error) {
	userID := c.Sender().ID
	switch text {
	case adminAddUser:
		b.steps.set(userID, stepAddUserName)
		return true, c.Send("Enter username:", b.keyboard.CancelMenu())
	case adminShowUser:
		b.steps.set(userID, stepShowUser)
		return true, c.Send("Enter the username to show:", b.keyboard.CancelMenu())
	case adminPaymentSettings:
		return true, b.showPaymentSettings(c)
	case adminPendingPayments:
		return true, b.showPendingPayments(c)
	case adminEditPlans:
		return true, b.showPlans(c)
	case adminPaymentTest:
		return true, b.toggleTestMode(c)
	case adminEditSupport:
		return true, b.startSupportEdit(c)
	case adminBroadcast:
		b.steps.set(userID, stepBroadcastTarget)
		return true, c.Send("Select the target users for your broadcast:", b.keyboard.BroadcastMenu())
	}
	return false, nil
}

// handleAdminStep consumes the next answer of a multi-message flow.
func (b *Bot) handleAdminStep(c tele.Context, st step, text string) error {
	userID := c.Sender().ID
	if text == labelCancel {
		b.steps.clear(userID)
		return c.Send("Operation canceled.", b.keyboard.AdminMenu())
	}

	switch st.Name {
	case stepPlanGB:
		gb, err := positiveInt(text)
		if err != nil {
			return c.Send("Traffic must be a positive number of GB. Try again:", b.keyboard.CancelMenu())
		}
		b.steps.set(userID, stepPlanPrice, "gb", strconv.Itoa(gb))
		return c.Send("Enter the price in USD (e.g. 9.99):", b.keyboard.CancelMenu())

	case stepPlanPrice:
		price, err := decimal.NewFromString(strings.TrimSpace(utils.NormalizeDigits(text)))
		if err != nil || !price.IsPositive() {
			return c.Send("Price must be a positive number. Try again:", b.keyboard.CancelMenu())
		}
		b.steps.set(userID, stepPlanDays, "price", price.String())
		return c.Send("Enter the plan duration in days:", b.keyboard.CancelMenu())

	case stepPlanDays:
		days, err := positiveInt(text)
		if err != nil {
			return c.Send("Days must be a positive number. Try again:", b.keyboard.CancelMenu())
		}
		b.steps.clear(userID)
		return b.savePlan(c, st.Data["gb"], st.Data["price"], days)

	case stepSupportText:
		if text == "" {
			return c.Send("Support text cannot be empty. Try again:", b.keyboard.CancelMenu())
		}
		b.steps.clear(userID)
		return b.saveSupportText(c, c.Text())

	case stepBroadcastTarget:
		target, ok := broadcastTargets[text]
		if !ok {
			return c.Send("Invalid selection. Please use the provided buttons.", b.keyboard.BroadcastMenu())
		}
		b.steps.set(userID, stepBroadcastMessage, "target", string(target), "label", text)
		return c.Send("Enter the message you want to broadcast:", b.keyboard.CancelMenu())

	case stepBroadcastMessage:
		if text == "" {
			return c.Send("Message cannot be empty. Please try again:", b.keyboard.CancelMenu())
		}
		b.steps.clear(userID)
		return b.startBroadcast(c, broadcastTarget(st.Data["target"]), st.Data["label"], c.Text())

	case stepMerchantID:
		if text == "" {
			return c.Send("Merchant ID cannot be empty. Please enter a valid Merchant ID:", b.keyboard.CancelMenu())
		}
		b.steps.set(userID, stepAPIKey, "merchant", text)
		return c.Send("Now enter your Cryptomus API Key:", b.keyboard.CancelMenu())

	case stepAPIKey:
		if text == "" {
			return c.Send("API Key cannot be empty. Please enter a valid API Key:", b.keyboard.CancelMenu())
		}
		b.steps.clear(userID)
		return b.savePaymentCredentials(c, st.Data["merchant"], text)

	case stepAddUserName:
		name := strings.ToLower(text)
		if !utils.ValidUsername(name) {
			return c.Send("Username may only contain letters, digits, '_' and '-'. Please enter a valid username:", b.keyboard.CancelMenu())
		}
		b.steps.set(userID, stepAddUserTraffic, "username", name)
		return c.Send("Enter traffic limit (GB):", b.keyboard.CancelMenu())

	case stepAddUserTraffic:
		gb, err := positiveInt(text)
		if err != nil {
			return c.Send("Invalid traffic limit. Please enter a number:", b.keyboard.CancelMenu())
		}
		b.steps.set(userID, stepAddUserDays, "traffic", strconv.Itoa(gb))
		return c.Send("Enter expiration days:", b.keyboard.CancelMenu())

	case stepAddUserDays:
		days, err := positiveInt(text)
		if err != nil {
			return c.Send("Invalid expiration days. Please enter a number:", b.keyboard.CancelMenu())
		}
		b.steps.clear(userID)
		gb, _ := strconv.Atoi(st.Data["traffic"])
		return b.addUser(c, st.Data["username"], gb, days)

	case stepShowUser:
		b.steps.clear(userID)
		return b.showUser(c, strings.ToLower(text))
	}

	b.steps.clear(userID)
	return c.Send("Please use the admin menu.", b.keyboard.AdminMenu())
}

// ── Plans ─────────────────────────────────────────────────────────────

func (b *Bot) showPlans(c tele.Context) error {
	return c.Send(formatPlans(b.deps.Plans.Plans()), b.keyboard.PlanAdminMenu())
}

func formatPlans(plans []models.Plan) string {
	if len(plans) == 0 {
		return "📝 No plans configured yet."
	}
	var sb strings.Builder
	sb.WriteString("📝 Current plans:\n\n")
	for _, p := range plans {
		fmt.Fprintf(&sb, "• %d GB - $%s - %d days\n", p.ID, p.Price.StringFixed(2), p.Days)
	}
	return sb.String()
}

func (b *Bot) handlePlanAdd(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return c.Respond()
	}
	_ = c.Respond()
	b.steps.set(c.Sender().ID, stepPlanGB)
	return c.Send("Enter the traffic (GB) for the plan. An existing plan with the same traffic is updated:", b.keyboard.CancelMenu())
}

func (b *Bot) savePlan(c tele.Context, gbText, priceText string, days int) error {
	gb, _ := strconv.Atoi(gbText)
	price, _ := decimal.NewFromString(priceText)

	ctx, cancel := handlerContext()
	defer cancel()

	plan := models.Plan{ID: gb, Price: price, Days: days}
	if err := b.deps.Plans.Upsert(ctx, plan); err != nil {
		b.logger.Error("Save plan failed", zap.Int("plan_gb", gb), zap.Error(err))
		return c.Send(fmt.Sprintf("❌ Could not save plan: %v", err), b.keyboard.AdminMenu())
	}
	b.logger.Info("Plan saved", zap.Int("plan_gb", gb), zap.String("price", price.String()), zap.Int("days", days))
	if err := c.Send(fmt.Sprintf("✅ Plan %d GB saved.", gb), b.keyboard.AdminMenu()); err != nil {
		return err
	}
	return b.showPlans(c)
}

func (b *Bot) handlePlanRemove(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return c.Respond()
	}
	id, err := strconv.Atoi(c.Data())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid plan"})
	}

	ctx, cancel := handlerContext()
	defer cancel()

	if err := b.deps.Plans.Remove(ctx, id); err != nil {
		msg := "Could not remove plan"
		switch {
		case errors.Is(err, billing.ErrPlanInUse):
			msg = "Plan has pending payments and cannot be removed yet"
		case errors.Is(err, billing.ErrPlanNotFound):
			msg = "Plan no longer exists"
		default:
			b.logger.Error("Remove plan failed", zap.Int("plan_gb", id), zap.Error(err))
		}
		return c.Respond(&tele.CallbackResponse{Text: msg, ShowAlert: true})
	}
	b.logger.Info("Plan removed", zap.Int("plan_gb", id))
	_ = c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("Plan %d GB removed", id)})
	return c.Edit(formatPlans(b.deps.Plans.Plans()), b.keyboard.PlanAdminMenu())
}

// ── Test mode / support text ──────────────────────────────────────────

func (b *Bot) toggleTestMode(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	on, err := b.deps.Settings.ToggleTestMode(ctx)
	if err != nil {
		b.logger.Error("Toggle test mode failed", zap.Error(err))
		return c.Send("❌ Could not change payment test mode.")
	}
	b.logger.Info("Payment test mode changed", zap.Bool("enabled", on), zap.Int64("admin_id", c.Sender().ID))
	if on {
		return c.Send("🔧 Payment test mode is now ON. Purchases are provisioned without payment.", b.keyboard.AdminMenu())
	}
	return c.Send("🔧 Payment test mode is now OFF. Purchases go through Cryptomus.", b.keyboard.AdminMenu())
}

func (b *Bot) startSupportEdit(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	current, _ := b.deps.Settings.SupportText(ctx)
	b.steps.set(c.Sender().ID, stepSupportText)
	return c.Send("Current support text:\n\n"+current+"\n\nSend the new support text:", b.keyboard.CancelMenu())
}

func (b *Bot) saveSupportText(c tele.Context, text string) error {
	ctx, cancel := handlerContext()
	defer cancel()

	if err := b.deps.Settings.SetSupportText(ctx, text); err != nil {
		b.logger.Error("Save support text failed", zap.Error(err))
		return c.Send("❌ Could not save support text.", b.keyboard.AdminMenu())
	}
	return c.Send("✅ Support text updated.", b.keyboard.AdminMenu())
}

// ── Payment settings ──────────────────────────────────────────────────

func (b *Bot) showPaymentSettings(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	stored, err := b.deps.Settings.PaymentCredentials(ctx)
	if err != nil {
		b.logger.Warn("Load payment credentials failed", zap.Error(err))
	}
	env := repository.PaymentCredentials{MerchantID: b.cfg.Payment.MerchantID, APIKey: b.cfg.Payment.APIKey}

	var sb strings.Builder
	sb.WriteString("Current Payment Settings:\n")
	fmt.Fprintf(&sb, "Merchant ID: %s\n", configuredMark(stored.MerchantID != "" || env.MerchantID != ""))
	fmt.Fprintf(&sb, "API Key: %s\n", configuredMark(stored.APIKey != "" || env.APIKey != ""))
	switch {
	case stored.Configured():
		sb.WriteString("Source: admin settings\n")
	case env.Configured():
		sb.WriteString("Source: environment\n")
	}
	sb.WriteString("\nPlease enter your Cryptomus Merchant ID:")

	b.steps.set(c.Sender().ID, stepMerchantID)
	return c.Send(sb.String(), b.keyboard.CancelMenu())
}

func configuredMark(ok bool) string {
	if ok {
		return "✅ Configured"
	}
	return "❌ Not configured"
}

func (b *Bot) savePaymentCredentials(c tele.Context, merchantID, apiKey string) error {
	ctx, cancel := handlerContext()
	defer cancel()

	creds := repository.PaymentCredentials{MerchantID: merchantID, APIKey: apiKey}
	if err := b.deps.Settings.SetPaymentCredentials(ctx, creds); err != nil {
		b.logger.Error("Save payment credentials failed", zap.Error(err))
		return c.Send(fmt.Sprintf("❌ Error updating payment credentials: %v", err), b.keyboard.AdminMenu())
	}
	b.logger.Info("Payment credentials updated", zap.Int64("admin_id", c.Sender().ID))
	return c.Send("✅ Payment credentials have been updated successfully!", b.keyboard.AdminMenu())
}

// ── Pending payments ──────────────────────────────────────────────────

func (b *Bot) showPendingPayments(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	pending, err := b.deps.Ledger.FindByStatus(ctx, models.PaymentPending)
	if err != nil {
		b.logger.Error("List pending payments failed", zap.Error(err))
		return c.Send("❌ Could not load pending payments.")
	}
	sessions := b.deps.Payments.Sessions()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })

	text := formatPending(pending, sessions, time.Now())
	if len(sessions) > pendingListLimit {
		sessions = sessions[:pendingListLimit]
	}
	if menu := b.keyboard.PendingMenu(sessions); menu != nil {
		return c.Send(text, menu)
	}
	return c.Send(text)
}

func formatPending(pending []models.PaymentRecord, sessions []models.PaymentSession, now time.Time) string {
	if len(pending) == 0 {
		return "⏳ No pending payments."
	}
	polled := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		polled[s.PaymentID] = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⏳ Pending payments: %d (polling %d)\n\n", len(pending), len(sessions))
	for i, rec := range pending {
		if i == pendingListLimit {
			fmt.Fprintf(&sb, "… and %d more\n", len(pending)-pendingListLimit)
			break
		}
		state := "polling"
		if !polled[rec.PaymentID] {
			state = "waiting for resume"
		}
		fmt.Fprintf(&sb, "• %s\n  user %d · %d GB · $%s · %s · %s\n",
			rec.PaymentID, rec.UserID, rec.PlanID, rec.Amount.StringFixed(2),
			utils.Ago(now.Sub(rec.CreatedAt)), state)
	}
	return sb.String()
}

func (b *Bot) handlePendingCancel(c tele.Context) error {
	if !b.isAdmin(c.Sender().ID) {
		return c.Respond()
	}
	paymentID := c.Data()

	ctx, cancel := handlerContext()
	defer cancel()

	if err := b.deps.Payments.Cancel(ctx, paymentID); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Cannot cancel: " + err.Error(), ShowAlert: true})
	}
	b.logger.Info("Payment cancelled by admin", zap.String("payment_id", paymentID), zap.Int64("admin_id", c.Sender().ID))
	return c.Respond(&tele.CallbackResponse{Text: "Payment " + shortID(paymentID) + " cancelled"})
}

// ── VPN users ─────────────────────────────────────────────────────────

func (b *Bot) addUser(c tele.Context, username string, trafficGB, days int) error {
	if err := c.Send(fmt.Sprintf("Adding user %s... Please wait.", username), &tele.ReplyMarkup{RemoveKeyboard: true}); err != nil {
		return err
	}

	ctx, cancel := handlerContext()
	defer cancel()

	if _, err := b.deps.Panel.AddUser(ctx, panel.CreateUserRequest{
		Username:       username,
		TrafficGB:      trafficGB,
		ExpirationDays: days,
	}); err != nil {
		b.logger.Error("Admin add user failed", zap.String("username", username), zap.Error(err))
		return c.Send(fmt.Sprintf("Error adding user: %v", err), b.keyboard.AdminMenu())
	}
	b.logger.Info("VPN user added by admin", zap.String("username", username), zap.Int("traffic_gb", trafficGB), zap.Int("days", days))

	uri, err := b.deps.Panel.UserURI(ctx, username, b.cfg.Provisioner.IPVersion)
	if err != nil {
		b.logger.Warn("Fetch connection URI failed", zap.String("username", username), zap.Error(err))
	}
	heading := fmt.Sprintf("User %s added successfully!", username)
	caption := html.EscapeString(heading) + "\n\n" + accountCaption(defaultLanguage, username, 0, int64(trafficGB)*bytesPerGB, 0, days, uri)
	if err := b.sendConfig(c.Chat(), caption, uri); err != nil {
		return err
	}
	return c.Send("Done.", b.keyboard.AdminMenu())
}

func (b *Bot) showUser(c tele.Context, username string) error {
	ctx, cancel := handlerContext()
	defer cancel()

	users, err := b.deps.Panel.ListUsers(ctx)
	if err != nil {
		b.logger.Error("List VPN users failed", zap.Error(err))
		return c.Send("❌ Could not load users.", b.keyboard.AdminMenu())
	}
	u, ok := users[username]
	if !ok {
		return c.Send(fmt.Sprintf("User %s not found.", username), b.keyboard.AdminMenu())
	}

	uri, err := b.deps.Panel.UserURI(ctx, username, b.cfg.Provisioner.IPVersion)
	if err != nil {
		b.logger.Warn("Fetch connection URI failed", zap.String("username", username), zap.Error(err))
	}
	caption := accountCaption(defaultLanguage, username, u.UsedDownloadBytes, u.MaxDownloadBytes, u.RemainingDays, u.ExpirationDays, uri)
	if u.Blocked {
		caption = "⛔️ Blocked\n" + caption
	}
	if err := b.sendConfig(c.Chat(), caption, uri); err != nil {
		return err
	}
	return c.Send("Done.", b.keyboard.AdminMenu())
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(utils.NormalizeDigits(s)))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
