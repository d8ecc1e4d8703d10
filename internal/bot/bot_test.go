package bot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/billing"
	"vpnshop/internal/config"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/repository"
)

type sent struct {
	to   string
	what interface{}
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	edits  []string
	failTo map[string]bool
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[to.Recipient()] {
		return nil, errors.New("blocked by user")
	}
	f.sent = append(f.sent, sent{to: to.Recipient(), what: what})
	return &tele.Message{ID: len(f.sent), Chat: &tele.Chat{}}, nil
}

func (f *fakeSender) Edit(_ tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, what.(string))
	return &tele.Message{}, nil
}

func (f *fakeSender) to(recipient string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, s := range f.sent {
		if s.to == recipient {
			out = append(out, s.what)
		}
	}
	return out
}

type staticPlans []models.Plan

func (p staticPlans) Plans() []models.Plan { return p }
func (p staticPlans) Plan(id int) (models.Plan, error) {
	for _, pl := range p {
		if pl.ID == id {
			return pl, nil
		}
	}
	return models.Plan{}, billing.ErrPlanNotFound
}
func (p staticPlans) Upsert(context.Context, models.Plan) error { return nil }
func (p staticPlans) Remove(context.Context, int) error         { return nil }

func newTestBot(t *testing.T) (*Bot, *fakeSender) {
	t.Helper()
	dir := t.TempDir()
	out := &fakeSender{failTo: map[string]bool{}}
	plans := staticPlans{
		{ID: 5, Price: decimal.RequireFromString("2"), Days: 30},
		{ID: 50, Price: decimal.RequireFromString("10.5"), Days: 30},
	}
	b := &Bot{
		cfg: &config.Config{Bot: config.BotConfig{AdminIDs: []int64{1, 2}}},
		deps: Deps{
			Plans:    plans,
			Settings: repository.NewSettingRepository(dir),
			Users:    repository.NewUserRepository(dir),
		},
		out:      out,
		keyboard: NewKeyboardBuilder(plans),
		steps:    newStepStore(),
		logger:   zap.NewNop(),
	}
	return b, out
}

func TestTranslationsCoverMenu(t *testing.T) {
	for _, l := range languageButtons {
		strs, ok := translations[l.Code]
		if !ok {
			t.Fatalf("no translations for %s", l.Code)
		}
		for _, key := range append([]string{"welcome", "language_selected"}, menuKeys...) {
			if strs[key] == "" {
				t.Errorf("%s is missing %q", l.Code, key)
			}
		}
		for _, key := range menuKeys {
			if got := menuAction(strs[key]); got != key {
				t.Errorf("menuAction(%q) = %q, want %q", strs[key], got, key)
			}
		}
		if languageCode(l.Label) != l.Code {
			t.Errorf("languageCode(%q) != %s", l.Label, l.Code)
		}
	}
	if menuAction("hello") != "" || languageCode("hello") != "" {
		t.Error("free text matched a button")
	}
}

func TestTrFallsBackToEnglish(t *testing.T) {
	if got := tr("tk", "no_plans"); got != translations["en"]["no_plans"] {
		t.Errorf("tk no_plans = %q", got)
	}
	if got := tr("xx", "underpaid", "9.99", "10.00"); !strings.Contains(got, "$9.99 of $10.00") {
		t.Errorf("underpaid = %q", got)
	}
	if got := tr("en", "no_such_key"); got != "no_such_key" {
		t.Errorf("missing key = %q", got)
	}
	if normalizeLanguage("") != "en" || normalizeLanguage("ru") != "ru" {
		t.Error("normalizeLanguage")
	}
}

func TestOwnedConfigs(t *testing.T) {
	users := map[string]panel.PanelUser{
		"42d20240101000002":  {},
		"42d20240101000001":  {},
		"42d20230101000000":  {Blocked: true},
		"421d20240101000000": {},
		"4d20240101000000":   {},
		"alice":              {},
	}
	got := ownedConfigs(users, 42)
	want := []string{"42d20240101000001", "42d20240101000002"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ownedConfigs = %v, want %v", got, want)
	}
}

func TestBroadcastRecipients(t *testing.T) {
	users := map[string]panel.PanelUser{
		"10d20240101000000": {},
		"10d20240201000000": {Blocked: true},
		"20d20240101000000": {Blocked: true},
		"30d20240101000000": {},
		"id5d1":             {},
		"admin":             {},
		"bob_d":             {},
	}
	cases := map[broadcastTarget][]int64{
		targetAll:     {10, 20, 30},
		targetActive:  {10, 30},
		targetExpired: {10, 20},
	}
	for target, want := range cases {
		got := broadcastRecipients(users, target)
		if len(got) != len(want) {
			t.Errorf("%s: got %v, want %v", target, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s: got %v, want %v", target, got, want)
				break
			}
		}
	}
}

func TestBroadcastCountsAndProgress(t *testing.T) {
	b, out := newTestBot(t)
	out.failTo["7"] = true

	ids := make([]int64, 25)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	ok, failed := b.broadcast(tele.ChatID(1), ids, "hello")
	if ok != 24 || failed != 1 {
		t.Fatalf("ok=%d failed=%d", ok, failed)
	}
	if len(out.edits) != 2 || out.edits[1] != "Broadcasting: 20/25 completed..." {
		t.Fatalf("progress edits = %v", out.edits)
	}
}

func TestNotifierUsesUserLanguage(t *testing.T) {
	b, out := newTestBot(t)
	ctx := context.Background()
	if err := b.deps.Users.SetLanguage(ctx, 99, "ru"); err != nil {
		t.Fatal(err)
	}

	b.PaymentExpired(ctx, 99, "pay-1")
	b.PaymentUnderpaid(ctx, 100, decimal.RequireFromString("9.99"), decimal.RequireFromString("10"))

	if got := out.to("99"); len(got) != 1 || got[0] != translations["ru"]["expired"] {
		t.Fatalf("chat 99 got %v", got)
	}
	if got := out.to("100"); len(got) != 1 || !strings.Contains(got[0].(string), "$9.99 of $10.00") {
		t.Fatalf("chat 100 got %v", got)
	}
}

func TestProvisioningFailedAlertsAdmins(t *testing.T) {
	b, out := newTestBot(t)
	b.ProvisioningFailed(context.Background(), 55, "pay-9", errors.New("cli exited 1"))

	if got := out.to("55"); len(got) != 1 || !strings.Contains(got[0].(string), "pay-9") {
		t.Fatalf("buyer got %v", got)
	}
	for _, admin := range []string{"1", "2"} {
		got := out.to(admin)
		if len(got) != 1 || !strings.Contains(got[0].(string), "cli exited 1") {
			t.Fatalf("admin %s got %v", admin, got)
		}
	}
}

func TestAccountReadySendsQR(t *testing.T) {
	b, out := newTestBot(t)
	b.AccountReady(context.Background(), 42, &billing.Account{
		Username:  "42d20240101000000",
		TrafficGB: 5,
		Days:      30,
		URI:       "hy2://pass@host:443?sni=a&insecure=1#x",
	})

	got := out.to("42")
	if len(got) != 1 {
		t.Fatalf("sent %d messages", len(got))
	}
	photo, ok := got[0].(*tele.Photo)
	if !ok {
		t.Fatalf("sent %T, want *tele.Photo", got[0])
	}
	for _, want := range []string{"42d20240101000000", "0.00/5.00 GB", "0/30", "<code>hy2://pass@host:443?sni=a&amp;insecure=1#x</code>"} {
		if !strings.Contains(photo.Caption, want) {
			t.Errorf("caption missing %q:\n%s", want, photo.Caption)
		}
	}
}

func TestAccountWithoutURISendsText(t *testing.T) {
	b, out := newTestBot(t)
	if err := b.sendAccount(tele.ChatID(42), "en", "", &billing.Account{Username: "u", TrafficGB: 1, Days: 30}); err != nil {
		t.Fatal(err)
	}
	got := out.to("42")
	if len(got) != 1 {
		t.Fatalf("sent %v", got)
	}
	if text, ok := got[0].(string); !ok || !strings.Contains(text, "connection link unavailable") {
		t.Fatalf("sent %#v", got[0])
	}
}

func TestRenderQR(t *testing.T) {
	buf, err := renderQR("hy2://example")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatal("not a PNG")
	}
}

func TestKeyboards(t *testing.T) {
	b, _ := newTestBot(t)

	menu := b.keyboard.PurchaseMenu("en")
	if len(menu.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(menu.InlineKeyboard))
	}
	btn := menu.InlineKeyboard[1][0]
	if btn.Unique != btnPurchase.Unique || btn.Data != "50" || btn.Text != "50 GB - $10.50 💰" {
		t.Fatalf("button = %+v", btn)
	}

	empty := NewKeyboardBuilder(staticPlans{})
	if empty.PurchaseMenu("en") != nil {
		t.Fatal("empty catalog should yield no purchase menu")
	}

	admin := b.keyboard.PlanAdminMenu()
	if len(admin.InlineKeyboard) != 3 || admin.InlineKeyboard[0][0].Unique != btnPlanAdd.Unique {
		t.Fatalf("plan admin menu = %+v", admin.InlineKeyboard)
	}

	main := b.keyboard.MainMenu("fa")
	if main.ReplyKeyboard[0][0].Text != translations["fa"][keyMyConfigs] {
		t.Fatalf("fa main menu = %+v", main.ReplyKeyboard[0])
	}
}

func TestFormatPending(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	pending := []models.PaymentRecord{
		{PaymentID: "a", UserID: 1, PlanID: 5, Amount: decimal.RequireFromString("2"), CreatedAt: now.Add(-90 * time.Second)},
		{PaymentID: "b", UserID: 2, PlanID: 50, Amount: decimal.RequireFromString("10"), CreatedAt: now.Add(-time.Hour)},
	}
	text := formatPending(pending, []models.PaymentSession{{PaymentID: "a"}}, now)
	for _, want := range []string{"Pending payments: 2 (polling 1)", "user 1 · 5 GB · $2.00 · 1m ago · polling", "waiting for resume"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if formatPending(nil, nil, now) != "⏳ No pending payments." {
		t.Error("empty pending text")
	}
}

func TestStepStore(t *testing.T) {
	s := newStepStore()
	s.set(1, stepPlanGB)
	s.set(1, stepPlanPrice, "gb", "5")
	s.set(1, stepPlanDays, "price", "2.5")

	st := s.get(1)
	if st.Name != stepPlanDays || st.Data["gb"] != "5" || st.Data["price"] != "2.5" {
		t.Fatalf("step = %+v", st)
	}
	s.clear(1)
	if s.get(1).Name != stepNone {
		t.Fatal("step not cleared")
	}
}

func TestPositiveInt(t *testing.T) {
	if n, err := positiveInt(" 30 "); err != nil || n != 30 {
		t.Fatalf("positiveInt = %d, %v", n, err)
	}
	if n, err := positiveInt("۳۰"); err != nil || n != 30 {
		t.Fatalf("positiveInt(persian) = %d, %v", n, err)
	}
	for _, in := range []string{"0", "-1", "x", ""} {
		if _, err := positiveInt(in); err == nil {
			t.Errorf("positiveInt(%q) accepted", in)
		}
	}
}
