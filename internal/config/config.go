package config

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Bot         BotConfig
	API         APIConfig
	Payment     PaymentConfig
	Provisioner ProvisionerConfig
	Storage     StorageConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token      string
	WebhookURL string
	UpdateMode string // "auto", "polling", "webhook"
	AdminIDs   []int64

	TestConfigTrafficGB int
	TestConfigDays      int
}

type APIConfig struct {
	Key string
}

type PaymentConfig struct {
	MerchantID string
	APIKey     string
	BaseURL    string

	PollInterval     time.Duration
	PollMaxDuration  time.Duration
	PollErrorRetries int
}

type ProvisionerConfig struct {
	Mode      string // "cli" or "api"
	Python    string
	CLIPath   string
	APIURL    string
	APIKey    string
	SubURL    string
	IPVersion int
}

type StorageConfig struct {
	DataDir       string
	LedgerBackend string // "json" or "mysql"
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("LEDGER_BACKEND", "json")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("BOT_UPDATE_MODE", "auto")
	viper.SetDefault("PAYMENT_POLL_INTERVAL", "30s")
	viper.SetDefault("PAYMENT_POLL_MAX_DURATION", "2h")
	viper.SetDefault("PAYMENT_POLL_ERROR_RETRIES", 0)
	viper.SetDefault("PROVISIONER_MODE", "cli")
	viper.SetDefault("CLI_PYTHON", "python3")
	viper.SetDefault("CLI_PATH", "/etc/hysteria/core/cli.py")
	viper.SetDefault("VPN_IP_VERSION", 4)
	viper.SetDefault("TEST_CONFIG_TRAFFIC_GB", 1)
	viper.SetDefault("TEST_CONFIG_DAYS", 30)

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:               viper.GetString("TELEGRAM_TOKEN"),
			WebhookURL:          viper.GetString("BOT_WEBHOOK_URL"),
			UpdateMode:          strings.ToLower(strings.TrimSpace(viper.GetString("BOT_UPDATE_MODE"))),
			AdminIDs:            ParseIDList(viper.GetString("ADMIN_USER_IDS")),
			TestConfigTrafficGB: viper.GetInt("TEST_CONFIG_TRAFFIC_GB"),
			TestConfigDays:      viper.GetInt("TEST_CONFIG_DAYS"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		Payment: PaymentConfig{
			MerchantID:       viper.GetString("CRYPTOMUS_MERCHANT_ID"),
			APIKey:           viper.GetString("CRYPTOMUS_API_KEY"),
			BaseURL:          viper.GetString("CRYPTOMUS_BASE_URL"),
			PollInterval:     duration("PAYMENT_POLL_INTERVAL", 30*time.Second),
			PollMaxDuration:  duration("PAYMENT_POLL_MAX_DURATION", 2*time.Hour),
			PollErrorRetries: viper.GetInt("PAYMENT_POLL_ERROR_RETRIES"),
		},
		Provisioner: ProvisionerConfig{
			Mode:      strings.ToLower(strings.TrimSpace(viper.GetString("PROVISIONER_MODE"))),
			Python:    viper.GetString("CLI_PYTHON"),
			CLIPath:   viper.GetString("CLI_PATH"),
			APIURL:    viper.GetString("VPN_API_URL"),
			APIKey:    viper.GetString("VPN_API_KEY"),
			SubURL:    viper.GetString("SUB_URL"),
			IPVersion: viper.GetInt("VPN_IP_VERSION"),
		},
		Storage: StorageConfig{
			DataDir:       viper.GetString("DATA_DIR"),
			LedgerBackend: strings.ToLower(strings.TrimSpace(viper.GetString("LEDGER_BACKEND"))),
		},
	}

	if cfg.Bot.Token == "" {
		log.Println("WARNING: TELEGRAM_TOKEN is not set")
	}
	if len(cfg.Bot.AdminIDs) == 0 {
		log.Println("WARNING: ADMIN_USER_IDS is empty, admin menu is disabled")
	}
	if cfg.Payment.MerchantID == "" || cfg.Payment.APIKey == "" {
		log.Println("WARNING: Cryptomus credentials are not set; they can still be entered from the admin menu")
	}
	if cfg.Storage.LedgerBackend == "mysql" && cfg.Database.Name == "" {
		log.Println("WARNING: LEDGER_BACKEND=mysql but DB_NAME is not set")
	}

	return cfg, nil
}

// IsAdmin reports whether userID is listed in ADMIN_USER_IDS.
func (b *BotConfig) IsAdmin(userID int64) bool {
	for _, id := range b.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}

// ParseIDList accepts a JSON array ("[1, 2]") or a comma separated list
// ("1,2"). Entries that are not integers are skipped.
func ParseIDList(raw string) []int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var nums []json.Number
		if err := json.Unmarshal([]byte(raw), &nums); err == nil {
			out := make([]int64, 0, len(nums))
			for _, n := range nums {
				if id, err := n.Int64(); err == nil {
					out = append(out, id)
				}
			}
			return out
		}
		raw = strings.Trim(raw, "[]")
	}

	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		log.Printf("WARNING: invalid %s, using %s", key, fallback)
		return fallback
	}
	return d
}
