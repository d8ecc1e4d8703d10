package config

import (
	"reflect"
	"testing"
	"time"
)

func TestParseIDList(t *testing.T) {
	cases := map[string][]int64{
		"":         nil,
		"[1, 22]":  {1, 22},
		`["7", 8]`: {7, 8},
		"1,2, 3":   {1, 2, 3},
		"4,abc,5":  {4, 5},
		`"9"`:      {9},
		"[10,11":   {10, 11},
	}
	for in, want := range cases {
		got := ParseIDList(in)
		if len(got) == 0 && len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ParseIDList(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("ADMIN_USER_IDS", "[100,200]")
	t.Setenv("PAYMENT_POLL_INTERVAL", "5s")
	t.Setenv("PAYMENT_POLL_MAX_DURATION", "not-a-duration")
	t.Setenv("PROVISIONER_MODE", " API ")
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Bot.Token)
	}
	if !cfg.Bot.IsAdmin(200) || cfg.Bot.IsAdmin(300) {
		t.Errorf("admins = %v", cfg.Bot.AdminIDs)
	}
	if cfg.Payment.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %s", cfg.Payment.PollInterval)
	}
	if cfg.Payment.PollMaxDuration != 2*time.Hour {
		t.Errorf("poll max duration = %s, want fallback 2h", cfg.Payment.PollMaxDuration)
	}
	if cfg.Provisioner.Mode != "api" {
		t.Errorf("provisioner mode = %q", cfg.Provisioner.Mode)
	}
	if cfg.Bot.TestConfigTrafficGB != 1 || cfg.Bot.TestConfigDays != 30 {
		t.Errorf("test config = %d GB / %d days", cfg.Bot.TestConfigTrafficGB, cfg.Bot.TestConfigDays)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "3306", Name: "shop", User: "u", Pass: "p", Charset: "utf8mb4"}
	want := "u:p@tcp(db:3306)/shop?charset=utf8mb4&parseTime=True&loc=Local"
	if got := d.DSN(); got != want {
		t.Fatalf("DSN = %s", got)
	}
}
